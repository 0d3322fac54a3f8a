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
)

const contractColumns = `id, claim_id, contractor_id, bid_id, value_cents, status, created_at, updated_at, completed_at`

func scanContract(s scanner) (*models.Contract, error) {
	var (
		c                models.Contract
		value            int64
		created, updated int64
		completed        sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.ClaimID, &c.ContractorID, &c.BidID, &value, &c.Status, &created, &updated, &completed); err != nil {
		return nil, err
	}
	c.Value = models.FromCents(value)
	c.CreatedAt = fromMs(created)
	c.UpdatedAt = fromMs(updated)
	c.CompletedAt = timePtr(completed)
	return &c, nil
}

func (s *Repo) CreateContract(ctx context.Context, c *models.Contract) error {
	if c == nil {
		return fmt.Errorf("contract is nil")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ContractActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO contracts (`+contractColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClaimID, c.ContractorID, c.BidID, models.ToCents(c.Value), c.Status,
		ms(c.CreatedAt), ms(c.UpdatedAt), nullMs(c.CompletedAt))
	return mapErr(err)
}

func (s *Repo) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	c, err := scanContract(s.r.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

func (s *Repo) GetContractByClaim(ctx context.Context, claimID string) (*models.Contract, error) {
	c, err := scanContract(s.r.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE claim_id = ?`, claimID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contract by claim: %w", err)
	}
	return c, nil
}

func (s *Repo) CompleteContract(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE contracts SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`, models.ContractCompleted, ms(at), ms(at), id, models.ContractActive))
}

func (s *Repo) LockContract(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE contracts SET updated_at = ? WHERE id = ?`, ms(at), id))
}

const milestoneColumns = `id, contract_id, stage, seq, percentage, amount_cents, status, submitted_at, approved_at, paid_at, updated_at`

func scanMilestone(s scanner) (*models.Milestone, error) {
	var (
		m                         models.Milestone
		amount, updated           int64
		submitted, approved, paid sql.NullInt64
	)
	if err := s.Scan(&m.ID, &m.ContractID, &m.Stage, &m.Seq, &m.Percentage, &amount, &m.Status,
		&submitted, &approved, &paid, &updated); err != nil {
		return nil, err
	}
	m.Amount = models.FromCents(amount)
	m.SubmittedAt = timePtr(submitted)
	m.ApprovedAt = timePtr(approved)
	m.PaidAt = timePtr(paid)
	m.UpdatedAt = fromMs(updated)
	return &m, nil
}

// CreateMilestones inserts the whole schedule or nothing.
func (s *Repo) CreateMilestones(ctx context.Context, list []models.Milestone) error {
	return s.atomic(ctx, func(r db.Runner) error {
		for i := range list {
			m := &list[i]
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.Status == "" {
				m.Status = models.MilestonePending
			}
			if m.UpdatedAt.IsZero() {
				m.UpdatedAt = time.Now().UTC()
			}
			if _, err := r.Exec(ctx, `INSERT INTO milestones (`+milestoneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.ContractID, m.Stage, m.Seq, m.Percentage, models.ToCents(m.Amount), m.Status,
				nullMs(m.SubmittedAt), nullMs(m.ApprovedAt), nullMs(m.PaidAt), ms(m.UpdatedAt)); err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}

func (s *Repo) ListMilestones(ctx context.Context, contractID string) ([]models.Milestone, error) {
	rows, err := s.r.QueryRows(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE contract_id = ? ORDER BY seq ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Repo) GetMilestone(ctx context.Context, id string) (*models.Milestone, error) {
	m, err := scanMilestone(s.r.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get milestone: %w", err)
	}
	return m, nil
}

// milestoneStamp names the timestamp column recorded on entering a status.
var milestoneStamp = map[string]string{
	models.MilestoneSubmitted: "submitted_at",
	models.MilestoneApproved:  "approved_at",
	models.MilestonePaid:      "paid_at",
}

func (s *Repo) TransitionMilestone(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	col, ok := milestoneStamp[to]
	if !ok {
		return false, fmt.Errorf("unsupported milestone status %q", to)
	}
	q := fmt.Sprintf(`UPDATE milestones SET status = ?, %s = ?, updated_at = ? WHERE id = ? AND status = ?`, col)
	return affected(s.r.Exec(ctx, q, to, ms(at), ms(at), id, from))
}

func (s *Repo) CountUnpaidMilestones(ctx context.Context, contractID string) (int, error) {
	var n int
	if err := s.r.QueryRow(ctx, `SELECT COUNT(1) FROM milestones WHERE contract_id = ? AND status <> ?`,
		contractID, models.MilestonePaid).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unpaid milestones: %w", err)
	}
	return n, nil
}
