package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/bidflow/internal/db"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

const auctionColumns = `id, claim_id, starting_bid_cents, current_bid_cents, bid_count, end_time, status, created_at, updated_at`

func scanAuction(s scanner) (*models.Auction, error) {
	var (
		a                         models.Auction
		starting                  int64
		current                   sql.NullInt64
		endTime, created, updated int64
	)
	if err := s.Scan(&a.ID, &a.ClaimID, &starting, &current, &a.BidCount, &endTime, &a.Status, &created, &updated); err != nil {
		return nil, err
	}
	a.StartingBid = models.FromCents(starting)
	if current.Valid {
		v := models.FromCents(current.Int64)
		a.CurrentBid = &v
	}
	a.EndTime = fromMs(endTime)
	a.CreatedAt = fromMs(created)
	a.UpdatedAt = fromMs(updated)
	return &a, nil
}

func (s *Repo) CreateAuction(ctx context.Context, a *models.Auction) error {
	if a == nil {
		return fmt.Errorf("auction is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AuctionOpen
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt

	var current any
	if a.CurrentBid != nil {
		current = models.ToCents(*a.CurrentBid)
	}
	_, err := s.r.Exec(ctx, `INSERT INTO auctions (`+auctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClaimID, models.ToCents(a.StartingBid), current, a.BidCount, ms(a.EndTime), a.Status, ms(a.CreatedAt), ms(a.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := scanAuction(s.r.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

// ListDueAuctions returns open auctions whose end time is before now, oldest
// first, starting after the cursor.
func (s *Repo) ListDueAuctions(ctx context.Context, now time.Time, after repository.AuctionCursor, limit int) ([]models.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND end_time < ?`
	args := []any{models.AuctionOpen, ms(now)}
	if after.ID != "" {
		query += ` AND (end_time > ? OR (end_time = ? AND id > ?))`
		args = append(args, ms(after.EndTime), ms(after.EndTime), after.ID)
	}
	query += ` ORDER BY end_time ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.r.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}
	defer rows.Close()

	var out []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Repo) SetAuctionStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, ms(at), id, from))
}

func (s *Repo) CreateBid(ctx context.Context, b *models.Bid) error {
	if b == nil {
		return fmt.Errorf("bid is nil")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BidActive
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	cents := models.ToCents(b.Amount)

	return s.atomic(ctx, func(r db.Runner) error {
		if _, err := r.Exec(ctx, `INSERT INTO bids (id, auction_id, contractor_id, amount_cents, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.AuctionID, b.ContractorID, cents, b.Status, ms(b.CreatedAt)); err != nil {
			return mapErr(err)
		}
		_, err := r.Exec(ctx, `UPDATE auctions SET bid_count = bid_count + 1,
			current_bid_cents = CASE WHEN current_bid_cents IS NULL OR current_bid_cents > ? THEN ? ELSE current_bid_cents END,
			updated_at = ? WHERE id = ?`, cents, cents, ms(b.CreatedAt), b.AuctionID)
		return err
	})
}

const bidColumns = `id, auction_id, contractor_id, amount_cents, status, created_at`

func scanBid(s scanner) (*models.Bid, error) {
	var (
		b       models.Bid
		cents   int64
		created int64
	)
	if err := s.Scan(&b.ID, &b.AuctionID, &b.ContractorID, &cents, &b.Status, &created); err != nil {
		return nil, err
	}
	b.Amount = models.FromCents(cents)
	b.CreatedAt = fromMs(created)
	return &b, nil
}

func (s *Repo) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	b, err := scanBid(s.r.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bid: %w", err)
	}
	return b, nil
}

// ListActiveBids returns the auction's active bids, best (lowest) first.
func (s *Repo) ListActiveBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	rows, err := s.r.QueryRows(ctx, `SELECT `+bidColumns+` FROM bids
		WHERE auction_id = ? AND status = ? ORDER BY amount_cents ASC, created_at ASC, id ASC`,
		auctionID, models.BidActive)
	if err != nil {
		return nil, fmt.Errorf("list active bids: %w", err)
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
