package negotiation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// View is a negotiation together with the parties it binds.
type View struct {
	models.Negotiation
	ClaimID      string          `json:"claim_id"`
	OwnerID      string          `json:"owner_id"`
	ContractorID string          `json:"contractor_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// Service runs the explicit negotiation actions: the winning contractor
// answers the expression of interest, then the claim owner answers the
// letter of intent.
type Service struct {
	store  repository.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewService(store repository.Store, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

func (s *Service) load(ctx context.Context, r repository.Tx, id string) (*View, error) {
	n, err := r.GetNegotiation(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperr.New(apperr.ErrNotFound, "negotiation %s not found", id)
	}
	bid, err := r.GetBid(ctx, n.BidID)
	if err != nil {
		return nil, err
	}
	auction, err := r.GetAuction(ctx, n.AuctionID)
	if err != nil {
		return nil, err
	}
	if bid == nil || auction == nil {
		return nil, fmt.Errorf("negotiation %s references missing bid or auction", id)
	}
	claim, err := r.GetClaim(ctx, auction.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("auction %s references missing claim", auction.ID)
	}
	return &View{
		Negotiation:  *n,
		ClaimID:      claim.ID,
		OwnerID:      claim.OwnerID,
		ContractorID: bid.ContractorID,
		Amount:       bid.Amount,
	}, nil
}

// Get returns the negotiation to one of its parties.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*View, error) {
	v, err := s.load(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != v.OwnerID && actor.ID != v.ContractorID {
		return nil, apperr.New(apperr.ErrForbidden, "not a party to this negotiation")
	}
	return v, nil
}

// RespondInterest records the winning contractor's answer to the expression
// of interest. Accepting moves the negotiation to a pending letter of intent.
func (s *Service) RespondInterest(ctx context.Context, actor models.Actor, id string, accept bool) (*View, error) {
	return s.respond(ctx, id, accept, models.PhaseIOI, models.PhaseLOI, models.NegotiationPending, func(v *View) error {
		if actor.Role != models.RoleContractor || actor.ID != v.ContractorID {
			return apperr.New(apperr.ErrForbidden, "only the winning contractor can answer the expression of interest")
		}
		return nil
	})
}

// RespondIntent records the claim owner's answer to the letter of intent.
// Accepting unlocks checkout for the winning bid.
func (s *Service) RespondIntent(ctx context.Context, actor models.Actor, id string, accept bool) (*View, error) {
	return s.respond(ctx, id, accept, models.PhaseLOI, models.PhaseLOI, models.NegotiationAccepted, func(v *View) error {
		if actor.Role != models.RoleOwner || actor.ID != v.OwnerID {
			return apperr.New(apperr.ErrForbidden, "only the claim owner can answer the letter of intent")
		}
		return nil
	})
}

func (s *Service) respond(ctx context.Context, id string, accept bool, phase, acceptPhase, acceptStatus string, authorize func(*View) error) (*View, error) {
	now := s.clock.Now().UTC()
	var out *View

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		v, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(v); err != nil {
			return err
		}
		if v.Phase != phase || v.Status != models.NegotiationPending {
			return apperr.New(apperr.ErrConflict, "negotiation is %s/%s, expected %s/pending", v.Phase, v.Status, phase)
		}

		toPhase, toStatus := acceptPhase, acceptStatus
		if !accept {
			toPhase, toStatus = phase, models.NegotiationRejected
		}
		ok, err := tx.TransitionNegotiation(ctx, id, phase, models.NegotiationPending, toPhase, toStatus, now)
		if err != nil {
			return fmt.Errorf("transition negotiation: %w", err)
		}
		if !ok {
			return apperr.New(apperr.ErrConflict, "negotiation changed concurrently")
		}

		v.Phase, v.Status, v.UpdatedAt = toPhase, toStatus, now
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("negotiation updated",
		slog.String("negotiation_id", id),
		slog.String("phase", out.Phase),
		slog.String("status", out.Status),
	)
	return out, nil
}
