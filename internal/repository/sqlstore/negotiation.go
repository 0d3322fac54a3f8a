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

const negotiationColumns = `id, auction_id, bid_id, phase, status, created_at, updated_at`

func scanNegotiation(s scanner) (*models.Negotiation, error) {
	var (
		n                models.Negotiation
		created, updated int64
	)
	if err := s.Scan(&n.ID, &n.AuctionID, &n.BidID, &n.Phase, &n.Status, &created, &updated); err != nil {
		return nil, err
	}
	n.CreatedAt = fromMs(created)
	n.UpdatedAt = fromMs(updated)
	return &n, nil
}

func (s *Repo) CreateNegotiation(ctx context.Context, n *models.Negotiation) error {
	if n == nil {
		return fmt.Errorf("negotiation is nil")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.UpdatedAt = n.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO negotiations (`+negotiationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AuctionID, n.BidID, n.Phase, n.Status, ms(n.CreatedAt), ms(n.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error) {
	n, err := scanNegotiation(s.r.QueryRow(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get negotiation: %w", err)
	}
	return n, nil
}

func (s *Repo) GetLiveNegotiationByAuction(ctx context.Context, auctionID string) (*models.Negotiation, error) {
	n, err := scanNegotiation(s.r.QueryRow(ctx, `SELECT `+negotiationColumns+` FROM negotiations
		WHERE auction_id = ? AND status <> ?`, auctionID, models.NegotiationRejected))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get live negotiation: %w", err)
	}
	return n, nil
}

func (s *Repo) TransitionNegotiation(ctx context.Context, id, fromPhase, fromStatus, toPhase, toStatus string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE negotiations SET phase = ?, status = ?, updated_at = ?
		WHERE id = ? AND phase = ? AND status = ?`,
		toPhase, toStatus, ms(at), id, fromPhase, fromStatus))
}
