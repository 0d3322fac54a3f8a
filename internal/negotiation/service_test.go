package negotiation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/internal/testutil"
	"github.com/garnizeh/bidflow/pkg/models"
)

var (
	owner      = models.Actor{ID: "owner-1", Role: models.RoleOwner}
	contractor = models.Actor{ID: "c-1", Role: models.RoleContractor}
	stranger   = models.Actor{ID: "c-9", Role: models.RoleContractor}
)

func openNegotiation(t *testing.T) (*sqlstore.Repo, *negotiation.Service, string) {
	t.Helper()
	ctx := context.Background()
	s := testutil.NewStore(t)
	clock := clockwork.NewFakeClockAt(epoch)

	claim := testutil.SeedClaim(t, s, owner.ID)
	a := testutil.SeedAuction(t, s, claim.ID, epoch.Add(-time.Minute))
	testutil.SeedBid(t, s, a, contractor.ID, "9000", epoch.Add(-time.Hour))
	if _, err := negotiation.NewAdvancer(s, clock, nil).Advance(ctx, a.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	n, err := s.GetLiveNegotiationByAuction(ctx, a.ID)
	if err != nil || n == nil {
		t.Fatalf("negotiation: %v %v", n, err)
	}
	return s, negotiation.NewService(s, clock, nil), n.ID
}

func TestNegotiation_HappyPath(t *testing.T) {
	ctx := context.Background()
	_, svc, id := openNegotiation(t)

	v, err := svc.RespondInterest(ctx, contractor, id, true)
	if err != nil {
		t.Fatalf("RespondInterest: %v", err)
	}
	if v.Phase != models.PhaseLOI || v.Status != models.NegotiationPending {
		t.Fatalf("after interest: %s/%s", v.Phase, v.Status)
	}

	v, err = svc.RespondIntent(ctx, owner, id, true)
	if err != nil {
		t.Fatalf("RespondIntent: %v", err)
	}
	if v.Phase != models.PhaseLOI || v.Status != models.NegotiationAccepted {
		t.Fatalf("after intent: %s/%s", v.Phase, v.Status)
	}

	// no backward or repeated transitions
	if _, err := svc.RespondInterest(ctx, contractor, id, true); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.RespondIntent(ctx, owner, id, false); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := svc.Get(ctx, contractor, id)
	if err != nil || got.Status != models.NegotiationAccepted || got.OwnerID != owner.ID {
		t.Fatalf("Get: %+v %v", got, err)
	}
}

func TestNegotiation_Authorization(t *testing.T) {
	ctx := context.Background()
	_, svc, id := openNegotiation(t)

	if _, err := svc.RespondInterest(ctx, stranger, id, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger: expected forbidden, got %v", err)
	}
	if _, err := svc.RespondInterest(ctx, owner, id, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("owner on interest: expected forbidden, got %v", err)
	}
	if _, err := svc.RespondIntent(ctx, owner, id, true); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("intent before interest: expected conflict, got %v", err)
	}
	if _, err := svc.Get(ctx, stranger, id); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger get: expected forbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, owner, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNegotiation_DeclineRejects(t *testing.T) {
	ctx := context.Background()
	s, svc, id := openNegotiation(t)

	v, err := svc.RespondInterest(ctx, contractor, id, false)
	if err != nil {
		t.Fatalf("RespondInterest: %v", err)
	}
	if v.Status != models.NegotiationRejected || v.Phase != models.PhaseIOI {
		t.Fatalf("after decline: %s/%s", v.Phase, v.Status)
	}
	if live, _ := s.GetLiveNegotiationByAuction(ctx, v.AuctionID); live != nil {
		t.Fatalf("rejected negotiation must not be live")
	}
}
