package milestones_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/milestones"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/internal/testutil"
	"github.com/garnizeh/bidflow/pkg/models"
)

var (
	epoch      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	owner      = models.Actor{ID: "owner-1", Role: models.RoleOwner}
	contractor = models.Actor{ID: "c-1", Role: models.RoleContractor}
)

func seedContract(t *testing.T) (*sqlstore.Repo, *models.Contract, []models.Milestone) {
	t.Helper()
	s := testutil.NewStore(t)
	c, ms := seedContractIn(t, s)
	return s, c, ms
}

func seedContractIn(t *testing.T, s *sqlstore.Repo) (*models.Contract, []models.Milestone) {
	t.Helper()
	ctx := context.Background()

	claim := testutil.SeedClaim(t, s, owner.ID)
	a := testutil.SeedAuction(t, s, claim.ID, epoch.Add(-time.Minute))
	bid := testutil.SeedBid(t, s, a, contractor.ID, "10000", epoch.Add(-time.Hour))

	c := &models.Contract{ClaimID: claim.ID, ContractorID: contractor.ID, BidID: bid.ID, Value: bid.Amount, CreatedAt: epoch}
	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	ms := milestones.BuildSchedule(c.ID, c.Value, epoch)
	if err := s.CreateMilestones(ctx, ms); err != nil {
		t.Fatalf("CreateMilestones: %v", err)
	}
	return c, ms
}

func TestLedger_NoSkippedStates(t *testing.T) {
	ctx := context.Background()
	s, c, ms := seedContract(t)
	l := milestones.NewLedger(s, clockwork.NewFakeClockAt(epoch), nil)
	m := ms[0]

	if _, err := l.Approve(ctx, owner, c.ID, m.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("approve pending: expected conflict, got %v", err)
	}
	if _, err := l.Pay(ctx, owner, c.ID, m.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("pay pending: expected conflict, got %v", err)
	}

	got, err := l.Submit(ctx, contractor, c.ID, m.ID)
	if err != nil || got.Status != models.MilestoneSubmitted || got.SubmittedAt == nil {
		t.Fatalf("Submit: %+v %v", got, err)
	}
	if _, err := l.Pay(ctx, owner, c.ID, m.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("pay submitted: expected conflict, got %v", err)
	}
	if _, err := l.Submit(ctx, contractor, c.ID, m.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("resubmit: expected conflict, got %v", err)
	}
}

func TestLedger_Authorization(t *testing.T) {
	ctx := context.Background()
	s, c, ms := seedContract(t)
	l := milestones.NewLedger(s, clockwork.NewFakeClockAt(epoch), nil)

	if _, err := l.Submit(ctx, owner, c.ID, ms[0].ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("owner submit: expected forbidden, got %v", err)
	}
	if _, err := l.Submit(ctx, models.Actor{ID: "c-2", Role: models.RoleContractor}, c.ID, ms[0].ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other contractor submit: expected forbidden, got %v", err)
	}
	if _, err := l.Submit(ctx, contractor, c.ID, ms[0].ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := l.Approve(ctx, contractor, c.ID, ms[0].ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("contractor approve: expected forbidden, got %v", err)
	}
	if _, err := l.Submit(ctx, contractor, "missing", ms[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing contract: expected not found, got %v", err)
	}
	if _, err := l.Submit(ctx, contractor, c.ID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing milestone: expected not found, got %v", err)
	}
	if _, err := l.Contract(ctx, models.Actor{ID: "x", Role: models.RoleOwner}, c.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger view: expected forbidden, got %v", err)
	}
}

func TestLedger_LastPayCompletesContract(t *testing.T) {
	ctx := context.Background()
	s, c, ms := seedContract(t)
	l := milestones.NewLedger(s, clockwork.NewFakeClockAt(epoch), nil)

	for i, m := range ms {
		if _, err := l.Submit(ctx, contractor, c.ID, m.ID); err != nil {
			t.Fatalf("Submit %s: %v", m.Stage, err)
		}
		if _, err := l.Approve(ctx, owner, c.ID, m.ID); err != nil {
			t.Fatalf("Approve %s: %v", m.Stage, err)
		}
		res, err := l.Pay(ctx, owner, c.ID, m.ID)
		if err != nil {
			t.Fatalf("Pay %s: %v", m.Stage, err)
		}
		last := i == len(ms)-1
		if res.ContractCompleted != last || res.Milestone.Status != models.MilestonePaid {
			t.Fatalf("Pay %s: %+v", m.Stage, res)
		}
	}

	view, err := l.Contract(ctx, contractor, c.ID)
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	if view.Status != models.ContractCompleted || view.CompletedAt == nil || len(view.Milestones) != 5 {
		t.Fatalf("unexpected contract %+v", view)
	}
	if !view.Milestones[3].Amount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("final stage amount %s", view.Milestones[3].Amount)
	}

	// duplicate pay is a no-op
	res, err := l.Pay(ctx, owner, c.ID, ms[4].ID)
	if err != nil || !res.AlreadyPaid || res.ContractCompleted {
		t.Fatalf("duplicate pay: %+v %v", res, err)
	}

	if n, _ := s.CountJobs(ctx, models.JobMilestonePayout); n != 5 {
		t.Fatalf("expected 5 payout jobs, got %d", n)
	}
	if n, _ := s.CountJobs(ctx, models.JobContractCompleted); n != 1 {
		t.Fatalf("expected 1 completion job, got %d", n)
	}
}

func TestLedger_ConcurrentFinalPaysCompleteContract(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewConcurrentStore(t)
	l := milestones.NewLedger(s, clockwork.NewFakeClockAt(epoch), nil)

	for round := 0; round < 10; round++ {
		c, ms := seedContractIn(t, s)
		for i, m := range ms {
			if _, err := l.Submit(ctx, contractor, c.ID, m.ID); err != nil {
				t.Fatalf("round %d: Submit %s: %v", round, m.Stage, err)
			}
			if _, err := l.Approve(ctx, owner, c.ID, m.ID); err != nil {
				t.Fatalf("round %d: Approve %s: %v", round, m.Stage, err)
			}
			if i < len(ms)-2 {
				if _, err := l.Pay(ctx, owner, c.ID, m.ID); err != nil {
					t.Fatalf("round %d: Pay %s: %v", round, m.Stage, err)
				}
			}
		}

		// the last two milestones are paid at the same time
		var wg sync.WaitGroup
		results := make(chan *milestones.PayResult, 2)
		errs := make(chan error, 2)
		start := make(chan struct{})
		for _, m := range ms[len(ms)-2:] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				<-start
				res, err := l.Pay(ctx, owner, c.ID, id)
				if err != nil {
					errs <- err
					return
				}
				results <- res
			}(m.ID)
		}
		close(start)
		wg.Wait()
		close(results)
		close(errs)

		for err := range errs {
			t.Fatalf("round %d: concurrent Pay: %v", round, err)
		}
		completions := 0
		for res := range results {
			if res.ContractCompleted {
				completions++
			}
		}
		if completions != 1 {
			t.Fatalf("round %d: expected exactly one pay to complete the contract, got %d", round, completions)
		}

		got, err := s.GetContract(ctx, c.ID)
		if err != nil {
			t.Fatalf("round %d: GetContract: %v", round, err)
		}
		if got.Status != models.ContractCompleted || got.CompletedAt == nil {
			t.Fatalf("round %d: all milestones paid but contract is %s", round, got.Status)
		}
	}
}
