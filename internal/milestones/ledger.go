package milestones

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/jobs"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// Ledger moves milestones through pending, submitted, approved and paid.
// The contractor submits, the claim owner approves and pays. Paying the last
// milestone completes the contract.
type Ledger struct {
	store  repository.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewLedger(store repository.Store, clock clockwork.Clock, logger *slog.Logger) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, clock: clock, logger: logger}
}

// PayResult reports the paid milestone and whether this payment completed
// the contract.
type PayResult struct {
	Milestone         *models.Milestone `json:"milestone"`
	ContractCompleted bool              `json:"contract_completed"`
	AlreadyPaid       bool              `json:"already_paid"`
}

type parties struct {
	contract *models.Contract
	claim    *models.Claim
}

func (l *Ledger) parties(ctx context.Context, r repository.Tx, contractID string) (*parties, error) {
	c, err := r.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.ErrNotFound, "contract %s not found", contractID)
	}
	claim, err := r.GetClaim(ctx, c.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("contract %s references missing claim %s", c.ID, c.ClaimID)
	}
	return &parties{contract: c, claim: claim}, nil
}

func (l *Ledger) milestone(ctx context.Context, r repository.Tx, contractID, milestoneID string) (*models.Milestone, error) {
	m, err := r.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.ContractID != contractID {
		return nil, apperr.New(apperr.ErrNotFound, "milestone %s not found on contract %s", milestoneID, contractID)
	}
	return m, nil
}

func requireContractor(actor models.Actor, p *parties) error {
	if actor.Role != models.RoleContractor || actor.ID != p.contract.ContractorID {
		return apperr.New(apperr.ErrForbidden, "only the contracted contractor can submit milestones")
	}
	return nil
}

func requireOwner(actor models.Actor, p *parties) error {
	if actor.Role != models.RoleOwner || actor.ID != p.claim.OwnerID {
		return apperr.New(apperr.ErrForbidden, "only the claim owner can approve or pay milestones")
	}
	return nil
}

// Contract returns the contract with its milestones to one of its parties.
func (l *Ledger) Contract(ctx context.Context, actor models.Actor, contractID string) (*models.Contract, error) {
	p, err := l.parties(ctx, l.store, contractID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != p.claim.OwnerID && actor.ID != p.contract.ContractorID {
		return nil, apperr.New(apperr.ErrForbidden, "not a party to this contract")
	}
	ms, err := l.store.ListMilestones(ctx, contractID)
	if err != nil {
		return nil, err
	}
	p.contract.Milestones = ms
	return p.contract, nil
}

// Submit marks a pending milestone's work as submitted for review.
func (l *Ledger) Submit(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*models.Milestone, error) {
	return l.step(ctx, actor, contractID, milestoneID, requireContractor, models.MilestonePending, models.MilestoneSubmitted)
}

// Approve accepts a submitted milestone.
func (l *Ledger) Approve(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*models.Milestone, error) {
	return l.step(ctx, actor, contractID, milestoneID, requireOwner, models.MilestoneSubmitted, models.MilestoneApproved)
}

func (l *Ledger) step(ctx context.Context, actor models.Actor, contractID, milestoneID string,
	authorize func(models.Actor, *parties) error, from, to string) (*models.Milestone, error) {
	now := l.clock.Now().UTC()
	var out *models.Milestone

	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := l.parties(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(actor, p); err != nil {
			return err
		}
		m, err := l.milestone(ctx, tx, contractID, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != from {
			return apperr.New(apperr.ErrConflict, "milestone %s is %s, expected %s", m.Stage, m.Status, from)
		}
		ok, err := tx.TransitionMilestone(ctx, m.ID, from, to, now)
		if err != nil {
			return fmt.Errorf("transition milestone: %w", err)
		}
		if !ok {
			return apperr.New(apperr.ErrConflict, "milestone %s changed concurrently", m.Stage)
		}
		out, err = tx.GetMilestone(ctx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("milestone updated",
		slog.String("contract_id", contractID),
		slog.String("milestone_id", milestoneID),
		slog.String("status", to),
	)
	return out, nil
}

// Pay releases an approved milestone. Paying an already paid milestone is a
// no-op. The payout itself runs as a background job committed with the
// status change.
func (l *Ledger) Pay(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*PayResult, error) {
	now := l.clock.Now().UTC()
	res := &PayResult{}

	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		*res = PayResult{}

		// Payers of the same contract queue here, so the unpaid count below
		// sees every payment committed before this one.
		if _, err := tx.LockContract(ctx, contractID, now); err != nil {
			return fmt.Errorf("lock contract: %w", err)
		}

		p, err := l.parties(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, p); err != nil {
			return err
		}
		m, err := l.milestone(ctx, tx, contractID, milestoneID)
		if err != nil {
			return err
		}

		switch m.Status {
		case models.MilestonePaid:
			res.Milestone, res.AlreadyPaid = m, true
			return nil
		case models.MilestoneApproved:
		default:
			return apperr.New(apperr.ErrConflict, "milestone %s is %s and must be approved before payment", m.Stage, m.Status)
		}

		ok, err := tx.TransitionMilestone(ctx, m.ID, models.MilestoneApproved, models.MilestonePaid, now)
		if err != nil {
			return fmt.Errorf("pay milestone: %w", err)
		}
		if !ok {
			// lost a race with a concurrent pay of the same milestone
			res.Milestone, res.AlreadyPaid = m, true
			return nil
		}

		job, err := jobs.NewJob(models.JobMilestonePayout, jobs.PayoutPayload{
			ContractID:   p.contract.ID,
			MilestoneID:  m.ID,
			ContractorID: p.contract.ContractorID,
			Stage:        m.Stage,
			Amount:       m.Amount,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Enqueue(ctx, job); err != nil {
			return err
		}

		unpaid, err := tx.CountUnpaidMilestones(ctx, contractID)
		if err != nil {
			return err
		}
		if unpaid == 0 {
			completed, err := tx.CompleteContract(ctx, contractID, now)
			if err != nil {
				return fmt.Errorf("complete contract: %w", err)
			}
			if completed {
				res.ContractCompleted = true
				notice, err := jobs.NewJob(models.JobContractCompleted, jobs.ContractPayload{
					ContractID:   p.contract.ID,
					ClaimID:      p.contract.ClaimID,
					ContractorID: p.contract.ContractorID,
					Value:        p.contract.Value,
				})
				if err != nil {
					return err
				}
				if _, err := tx.Enqueue(ctx, notice); err != nil {
					return err
				}
			}
		}

		res.Milestone, err = tx.GetMilestone(ctx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyPaid {
		l.logger.Info("milestone paid",
			slog.String("contract_id", contractID),
			slog.String("milestone_id", milestoneID),
			slog.Bool("contract_completed", res.ContractCompleted),
		)
	}
	return res, nil
}
