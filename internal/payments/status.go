package payments

import (
	"context"
	"fmt"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/pkg/models"
)

// PaymentStatus returns the payment recorded for a checkout session to the
// claim owner or the bidding contractor. A PENDING payment past its expiry
// is marked EXPIRED on the way out.
func (s *Service) PaymentStatus(ctx context.Context, actor models.Actor, sessionID string) (*models.Payment, error) {
	p, err := s.store.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.ErrNotFound, "payment %s not found", sessionID)
	}

	if actor.Role != models.RoleAdmin && actor.ID != p.ContractorID {
		claim, err := s.store.GetClaim(ctx, p.ClaimID)
		if err != nil {
			return nil, err
		}
		if claim == nil || claim.OwnerID != actor.ID {
			return nil, apperr.New(apperr.ErrForbidden, "not a party to this payment")
		}
	}

	now := s.clock.Now().UTC()
	if p.Status == models.PaymentPending && !now.Before(p.ExpiresAt) {
		n, err := s.store.ExpirePendingBySession(ctx, sessionID, now)
		if err != nil {
			return nil, fmt.Errorf("expire payment: %w", err)
		}
		if n > 0 {
			p.Status = models.PaymentExpired
			p.UpdatedAt = now
		}
	}
	return p, nil
}
