package api

import (
	"context"

	"github.com/garnizeh/bidflow/internal/milestones"
	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/internal/payments"
	"github.com/garnizeh/bidflow/internal/scheduling"
	"github.com/garnizeh/bidflow/pkg/models"
)

type NegotiationService interface {
	Get(ctx context.Context, actor models.Actor, id string) (*negotiation.View, error)
	RespondInterest(ctx context.Context, actor models.Actor, id string, accept bool) (*negotiation.View, error)
	RespondIntent(ctx context.Context, actor models.Actor, id string, accept bool) (*negotiation.View, error)
}

type PaymentService interface {
	CreateCheckout(ctx context.Context, actor models.Actor, req payments.CheckoutRequest) (*payments.CheckoutResult, error)
	PaymentStatus(ctx context.Context, actor models.Actor, sessionID string) (*models.Payment, error)
	HandleNotification(ctx context.Context, signature string, body []byte) (string, error)
}

type MilestoneLedger interface {
	Contract(ctx context.Context, actor models.Actor, contractID string) (*models.Contract, error)
	Submit(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*models.Milestone, error)
	Approve(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*models.Milestone, error)
	Pay(ctx context.Context, actor models.Actor, contractID, milestoneID string) (*milestones.PayResult, error)
}

type SchedulingService interface {
	CreateBooking(ctx context.Context, actor models.Actor, req scheduling.BookingRequest) (*scheduling.BookingResult, error)
	HandleNotification(ctx context.Context, signature string, body []byte) (*scheduling.Result, error)
}

// Services are the domain services the routes dispatch to.
type Services struct {
	Negotiations NegotiationService
	Payments     PaymentService
	Ledger       MilestoneLedger
	Scheduling   SchedulingService
}
