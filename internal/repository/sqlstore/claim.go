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

const claimColumns = `id, owner_id, title, status, winner_id, created_at, updated_at`

func scanClaim(s scanner) (*models.Claim, error) {
	var (
		c                models.Claim
		winner           sql.NullString
		created, updated int64
	)
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Status, &winner, &created, &updated); err != nil {
		return nil, err
	}
	c.WinnerID = strPtr(winner)
	c.CreatedAt = fromMs(created)
	c.UpdatedAt = fromMs(updated)
	return &c, nil
}

func (s *Repo) CreateClaim(ctx context.Context, c *models.Claim) error {
	if c == nil {
		return fmt.Errorf("claim is nil")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ClaimOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO claims (`+claimColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Title, c.Status, nullStr(c.WinnerID), ms(c.CreatedAt), ms(c.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	c, err := scanClaim(s.r.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func (s *Repo) AwardClaim(ctx context.Context, claimID, winnerID string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx,
		`UPDATE claims SET winner_id = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		winnerID, models.ClaimClosed, ms(at), claimID, models.ClaimOpen))
}

func (s *Repo) UpsertParticipant(ctx context.Context, claimID, contractorID, status string, at time.Time) error {
	_, err := s.r.Exec(ctx, `INSERT INTO claim_participants (id, claim_id, contractor_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (claim_id, contractor_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		uuid.NewString(), claimID, contractorID, status, ms(at), ms(at))
	return err
}

func (s *Repo) GetParticipant(ctx context.Context, claimID, contractorID string) (*models.ClaimParticipant, error) {
	var (
		p                models.ClaimParticipant
		created, updated int64
	)
	err := s.r.QueryRow(ctx, `SELECT id, claim_id, contractor_id, status, created_at, updated_at
		FROM claim_participants WHERE claim_id = ? AND contractor_id = ?`, claimID, contractorID).
		Scan(&p.ID, &p.ClaimID, &p.ContractorID, &p.Status, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	p.CreatedAt = fromMs(created)
	p.UpdatedAt = fromMs(updated)
	return &p, nil
}
