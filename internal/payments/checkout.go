package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/paygate"
	"github.com/garnizeh/bidflow/pkg/repository"
)

type CheckoutRequest struct {
	BidID   string `json:"bidId"`
	ClaimID string `json:"claimId"`
}

type CheckoutResult struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
	Quote       Quote  `json:"quote"`
}

// CreateCheckout returns a payment link for the owner to pay a bid. While an
// open session exists for the bid its link is returned again, so repeated or
// concurrent calls never leave two payable sessions.
func (s *Service) CreateCheckout(ctx context.Context, actor models.Actor, req CheckoutRequest) (*CheckoutResult, error) {
	if req.BidID == "" || req.ClaimID == "" {
		return nil, apperr.New(apperr.ErrValidation, "bidId and claimId are required")
	}

	claim, err := s.store.GetClaim(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, apperr.New(apperr.ErrNotFound, "claim %s not found", req.ClaimID)
	}
	if actor.Role != models.RoleOwner || actor.ID != claim.OwnerID {
		return nil, apperr.New(apperr.ErrForbidden, "only the claim owner can pay for it")
	}
	if claim.Status != models.ClaimOpen {
		return nil, apperr.New(apperr.ErrConflict, "claim has already been awarded")
	}

	bid, err := s.store.GetBid(ctx, req.BidID)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, apperr.New(apperr.ErrNotFound, "bid %s not found", req.BidID)
	}
	auction, err := s.store.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil || auction.ClaimID != claim.ID {
		return nil, apperr.New(apperr.ErrValidation, "bid does not belong to this claim")
	}
	if bid.Status != models.BidActive {
		return nil, apperr.New(apperr.ErrConflict, "bid is %s", bid.Status)
	}

	if err := s.checkNegotiation(ctx, auction.ID, bid.ID); err != nil {
		return nil, err
	}

	previous, err := s.store.ListPaymentsByBid(ctx, bid.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range previous {
		if p.Status == models.PaymentCompleted {
			return nil, apperr.New(apperr.ErrConflict, "bid has already been paid")
		}
	}

	quote := ComputeQuote(bid.Amount, s.cfg.FeePercent)

	pending, err := s.store.GetPendingPaymentByBid(ctx, bid.ID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		reusable, err := s.reconcilePending(ctx, pending)
		if err != nil {
			return nil, err
		}
		if reusable {
			return &CheckoutResult{CheckoutURL: pending.CheckoutURL, SessionID: pending.SessionID, Quote: quote}, nil
		}
	}

	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.cfg.SessionTTL)
	session, err := s.gateway.CreateCheckoutSession(ctx, paygate.CheckoutParams{
		Amount:      quote.Total,
		Currency:    s.cfg.Currency,
		Description: claim.Title,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
		ExpiresAt:   expiresAt,
		Metadata: map[string]string{
			"bid_id":        bid.ID,
			"claim_id":      claim.ID,
			"contractor_id": bid.ContractorID,
		},
		// one key per attempt: concurrent callers share a session, a retry
		// after expiry gets a fresh one
		IdempotencyKey: "checkout-" + bid.ID + "-" + strconv.Itoa(len(previous)),
	})
	if err != nil {
		return nil, apperr.New(apperr.ErrUpstream, "create checkout session: %v", err)
	}

	p := &models.Payment{
		BidID:        bid.ID,
		ClaimID:      claim.ID,
		ContractorID: bid.ContractorID,
		SessionID:    session.ID,
		CheckoutURL:  session.URL,
		Amount:       quote.Amount,
		PlatformFee:  quote.PlatformFee,
		Total:        quote.Total,
		Currency:     s.cfg.Currency,
		Status:       models.PaymentPending,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if session.PaymentIntent != "" {
		intent := session.PaymentIntent
		p.PaymentIntentID = &intent
	}

	err = s.store.CreatePayment(ctx, p)
	if errors.Is(err, repository.ErrDuplicate) {
		return s.resolveCollision(ctx, bid.ID, session, quote)
	}
	if err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}

	s.logger.Info("checkout session created",
		slog.String("bid_id", bid.ID),
		slog.String("session_id", session.ID),
		slog.String("total", quote.Total.StringFixed(2)),
	)
	return &CheckoutResult{CheckoutURL: session.URL, SessionID: session.ID, Quote: quote}, nil
}

// checkNegotiation gates checkout on the auction's live negotiation, when
// there is one: it must be about this bid and its letter of intent accepted.
func (s *Service) checkNegotiation(ctx context.Context, auctionID, bidID string) error {
	n, err := s.store.GetLiveNegotiationByAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	if n.BidID != bidID {
		return apperr.New(apperr.ErrConflict, "auction is negotiating with another bid")
	}
	if n.Phase != models.PhaseLOI || n.Status != models.NegotiationAccepted {
		return apperr.New(apperr.ErrConflict, "letter of intent has not been accepted (negotiation is %s/%s)", n.Phase, n.Status)
	}
	return nil
}

// reconcilePending asks the gateway about a PENDING payment's session. It
// reports whether the session can still be paid; expired sessions are marked
// EXPIRED locally so a new one can be opened.
func (s *Service) reconcilePending(ctx context.Context, p *models.Payment) (bool, error) {
	now := s.clock.Now().UTC()

	session, err := s.gateway.GetCheckoutSession(ctx, p.SessionID)
	switch {
	case paygate.IsNotFound(err):
		session = &paygate.Session{ID: p.SessionID, Status: paygate.SessionExpired}
	case err != nil:
		return false, apperr.New(apperr.ErrUpstream, "look up checkout session: %v", err)
	}

	switch session.Status {
	case paygate.SessionOpen:
		if now.Before(p.ExpiresAt) {
			return true, nil
		}
		// past our own deadline; close it before replacing it
		if _, err := s.gateway.ExpireCheckoutSession(ctx, p.SessionID); err != nil && !paygate.IsNotFound(err) {
			return false, apperr.New(apperr.ErrUpstream, "expire checkout session: %v", err)
		}
	case paygate.SessionComplete:
		return false, apperr.New(apperr.ErrConflict, "payment for this bid is completing; wait for confirmation")
	}

	if _, err := s.store.ExpirePendingBySession(ctx, p.SessionID, now); err != nil {
		return false, fmt.Errorf("expire payment: %w", err)
	}
	s.logger.Info("stale checkout session expired", slog.String("session_id", p.SessionID))
	return false, nil
}

// resolveCollision handles losing the race to record a PENDING payment: the
// winner's session is returned and ours, if different, is closed.
func (s *Service) resolveCollision(ctx context.Context, bidID string, mine *paygate.Session, quote Quote) (*CheckoutResult, error) {
	winner, err := s.store.GetPendingPaymentByBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// same session recorded by a concurrent call
		winner, err = s.store.GetPaymentBySession(ctx, mine.ID)
		if err != nil {
			return nil, err
		}
		if winner == nil || winner.Status != models.PaymentPending {
			return nil, apperr.New(apperr.ErrConflict, "checkout changed concurrently; retry")
		}
	}

	if winner.SessionID != mine.ID {
		if _, err := s.gateway.ExpireCheckoutSession(ctx, mine.ID); err != nil {
			s.logger.Warn("expire duplicate checkout session", slog.String("session_id", mine.ID), slog.Any("err", err))
		}
	}
	return &CheckoutResult{CheckoutURL: winner.CheckoutURL, SessionID: winner.SessionID, Quote: quote}, nil
}
