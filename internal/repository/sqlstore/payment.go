package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/bidflow/pkg/models"
)

const paymentColumns = `id, bid_id, claim_id, contractor_id, session_id, checkout_url, amount_cents, platform_fee_cents,
	total_cents, currency, status, payment_intent_id, transaction_ref, paid_at, expires_at, created_at, updated_at`

func scanPayment(s scanner) (*models.Payment, error) {
	var (
		p                         models.Payment
		amount, fee, total        int64
		intent, ref               sql.NullString
		paid                      sql.NullInt64
		expires, created, updated int64
	)
	if err := s.Scan(&p.ID, &p.BidID, &p.ClaimID, &p.ContractorID, &p.SessionID, &p.CheckoutURL,
		&amount, &fee, &total, &p.Currency, &p.Status, &intent, &ref, &paid, &expires, &created, &updated); err != nil {
		return nil, err
	}
	p.Amount = models.FromCents(amount)
	p.PlatformFee = models.FromCents(fee)
	p.Total = models.FromCents(total)
	p.PaymentIntentID = strPtr(intent)
	p.TransactionRef = strPtr(ref)
	p.PaidAt = timePtr(paid)
	p.ExpiresAt = fromMs(expires)
	p.CreatedAt = fromMs(created)
	p.UpdatedAt = fromMs(updated)
	return &p, nil
}

func (s *Repo) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p == nil {
		return fmt.Errorf("payment is nil")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BidID, p.ClaimID, p.ContractorID, p.SessionID, p.CheckoutURL,
		models.ToCents(p.Amount), models.ToCents(p.PlatformFee), models.ToCents(p.Total), p.Currency, p.Status,
		nullStr(p.PaymentIntentID), nullStr(p.TransactionRef), nullMs(p.PaidAt), ms(p.ExpiresAt), ms(p.CreatedAt), ms(p.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) getPayment(ctx context.Context, where string, arg any) (*models.Payment, error) {
	p, err := scanPayment(s.r.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *Repo) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	return s.getPayment(ctx, `session_id = ?`, sessionID)
}

func (s *Repo) GetPendingPaymentByBid(ctx context.Context, bidID string) (*models.Payment, error) {
	return s.getPayment(ctx, `bid_id = ? AND status = 'PENDING'`, bidID)
}

// ListPaymentsByBid returns every checkout attempt for the bid, newest first.
func (s *Repo) ListPaymentsByBid(ctx context.Context, bidID string) ([]models.Payment, error) {
	rows, err := s.r.QueryRows(ctx, `SELECT `+paymentColumns+` FROM payments WHERE bid_id = ? ORDER BY created_at DESC`, bidID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Repo) CompletePayment(ctx context.Context, sessionID, transactionRef string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE payments SET status = ?, transaction_ref = ?,
		payment_intent_id = COALESCE(payment_intent_id, ?), paid_at = ?, updated_at = ?
		WHERE session_id = ? AND status <> ?`,
		models.PaymentCompleted, nullStr(&transactionRef), nullStr(&transactionRef), ms(at), ms(at),
		sessionID, models.PaymentCompleted))
}

func (s *Repo) ExpirePendingBySession(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	return affectedCount(s.r.Exec(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE session_id = ? AND status = ?`,
		models.PaymentExpired, ms(at), sessionID, models.PaymentPending))
}

func (s *Repo) FailPendingByIntent(ctx context.Context, intentID string, at time.Time) (int64, error) {
	return affectedCount(s.r.Exec(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE payment_intent_id = ? AND status = ?`,
		models.PaymentFailed, ms(at), intentID, models.PaymentPending))
}

func (s *Repo) FailPendingByBid(ctx context.Context, bidID string, at time.Time) (int64, error) {
	return affectedCount(s.r.Exec(ctx, `UPDATE payments SET status = ?, updated_at = ?
		WHERE bid_id = ? AND status = ? AND payment_intent_id IS NULL`,
		models.PaymentFailed, ms(at), bidID, models.PaymentPending))
}
