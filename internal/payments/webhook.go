package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/jobs"
	"github.com/garnizeh/bidflow/internal/milestones"
	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/internal/webhook"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// Notification types acted on. Anything else is acknowledged and ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// Results reported by HandleNotification.
const (
	ActionApplied = "applied"
	ActionNoop    = "noop"
	ActionIgnored = "ignored"
)

// Event is the gateway's notification envelope.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// eventObject covers the fields read from both session and payment intent
// objects.
type eventObject struct {
	ID            string            `json:"id"`
	PaymentIntent *string           `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// HandleNotification verifies and applies one gateway notification. The
// returned action is informational; every structurally valid event is a
// success, including the ones that change nothing.
func (s *Service) HandleNotification(ctx context.Context, signature string, body []byte) (string, error) {
	now := s.clock.Now()
	if err := webhook.Verify([]byte(s.cfg.WebhookSecret), signature, body, now, s.cfg.Tolerance); err != nil {
		s.logger.Warn("payment notification rejected", slog.Any("err", err))
		return "", err
	}
	if s.schemas != nil {
		if err := s.schemas.Validate(ctx, schema.PaymentEvent, body); err != nil {
			return "", err
		}
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", apperr.New(apperr.ErrValidation, "decode notification: %v", err)
	}
	var obj eventObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return "", apperr.New(apperr.ErrValidation, "decode notification object: %v", err)
	}

	logger := s.logger.With(slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))

	var (
		action string
		err    error
	)
	switch ev.Type {
	case EventCheckoutCompleted:
		action, err = s.completeCheckout(ctx, obj, logger)
	case EventCheckoutExpired:
		action, err = s.expireCheckout(ctx, obj)
	case EventPaymentFailed:
		action, err = s.failPayment(ctx, obj)
	default:
		action = ActionIgnored
	}
	if err != nil {
		logger.Error("payment notification failed", slog.Any("err", err))
		return "", err
	}
	logger.Info("payment notification handled", slog.String("action", action))
	return action, nil
}

func (s *Service) completeCheckout(ctx context.Context, obj eventObject, logger *slog.Logger) (string, error) {
	if obj.ID == "" {
		return "", apperr.New(apperr.ErrValidation, "checkout session id is missing")
	}
	p, err := s.store.GetPaymentBySession(ctx, obj.ID)
	if err != nil {
		return "", err
	}
	if p == nil || p.Status == models.PaymentCompleted {
		return ActionNoop, nil
	}

	now := s.clock.Now().UTC()
	ref := obj.ID
	if obj.PaymentIntent != nil && *obj.PaymentIntent != "" {
		ref = *obj.PaymentIntent
	}

	action := ActionApplied
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		ok, err := tx.CompletePayment(ctx, obj.ID, ref, now)
		if err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		if !ok {
			action = ActionNoop
			return nil
		}
		return s.formContract(ctx, tx, p, now, logger)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ActionNoop, nil
	}
	if err != nil {
		return "", err
	}
	return action, nil
}

// formContract awards the claim to the paid bid and opens its contract.
func (s *Service) formContract(ctx context.Context, tx repository.Tx, p *models.Payment, now time.Time, logger *slog.Logger) error {
	bid, err := tx.GetBid(ctx, p.BidID)
	if err != nil {
		return err
	}
	if bid == nil {
		return fmt.Errorf("payment %s references missing bid %s", p.ID, p.BidID)
	}

	awarded, err := tx.AwardClaim(ctx, p.ClaimID, bid.ContractorID, now)
	if err != nil {
		return fmt.Errorf("award claim: %w", err)
	}
	if !awarded {
		// the money is in; someone has to refund it by hand
		logger.Error("payment completed for a claim that is no longer open",
			slog.String("claim_id", p.ClaimID),
			slog.String("session_id", p.SessionID),
		)
		return nil
	}

	// a direct checkout can beat the scheduler to a still open auction
	if _, err := tx.SetAuctionStatus(ctx, bid.AuctionID, models.AuctionOpen, models.AuctionClosed, now); err != nil {
		return fmt.Errorf("close auction: %w", err)
	}

	n, err := tx.GetLiveNegotiationByAuction(ctx, bid.AuctionID)
	if err != nil {
		return err
	}
	if n != nil && n.BidID == bid.ID {
		if _, err := tx.TransitionNegotiation(ctx, n.ID, n.Phase, n.Status, models.PhaseContract, models.NegotiationAccepted, now); err != nil {
			return fmt.Errorf("close negotiation: %w", err)
		}
	}

	c := &models.Contract{
		ClaimID:      p.ClaimID,
		ContractorID: bid.ContractorID,
		BidID:        bid.ID,
		Value:        bid.Amount,
		Status:       models.ContractActive,
		CreatedAt:    now,
	}
	if err := tx.CreateContract(ctx, c); err != nil {
		return err
	}
	if err := tx.CreateMilestones(ctx, milestones.BuildSchedule(c.ID, c.Value, now)); err != nil {
		return fmt.Errorf("create milestones: %w", err)
	}
	if err := tx.UpsertParticipant(ctx, p.ClaimID, bid.ContractorID, models.ParticipantApproved, now); err != nil {
		return fmt.Errorf("approve participant: %w", err)
	}

	job, err := jobs.NewJob(models.JobContractCreated, jobs.ContractPayload{
		ContractID:   c.ID,
		ClaimID:      c.ClaimID,
		ContractorID: c.ContractorID,
		Value:        c.Value,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Enqueue(ctx, job); err != nil {
		return err
	}

	logger.Info("contract formed",
		slog.String("contract_id", c.ID),
		slog.String("claim_id", c.ClaimID),
		slog.String("contractor_id", c.ContractorID),
	)
	return nil
}

func (s *Service) expireCheckout(ctx context.Context, obj eventObject) (string, error) {
	if obj.ID == "" {
		return "", apperr.New(apperr.ErrValidation, "checkout session id is missing")
	}
	n, err := s.store.ExpirePendingBySession(ctx, obj.ID, s.clock.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("expire payment: %w", err)
	}
	if n == 0 {
		return ActionNoop, nil
	}
	return ActionApplied, nil
}

func (s *Service) failPayment(ctx context.Context, obj eventObject) (string, error) {
	now := s.clock.Now().UTC()

	var (
		n   int64
		err error
	)
	if obj.ID != "" {
		n, err = s.store.FailPendingByIntent(ctx, obj.ID, now)
		if err != nil {
			return "", fmt.Errorf("fail payment: %w", err)
		}
	}
	// the intent may not have been known when the session was opened
	if bidID := obj.Metadata["bid_id"]; n == 0 && bidID != "" {
		n, err = s.store.FailPendingByBid(ctx, bidID, now)
		if err != nil {
			return "", fmt.Errorf("fail payment: %w", err)
		}
	}
	if n == 0 {
		return ActionNoop, nil
	}
	return ActionApplied, nil
}
