// Package payments opens checkout sessions for winning bids and applies the
// payment gateway's notifications, forming the contract once a payment
// completes.
package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/pkg/paygate"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// Gateway is the part of the payment gateway checkout relies on.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p paygate.CheckoutParams) (*paygate.Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*paygate.Session, error)
	ExpireCheckoutSession(ctx context.Context, id string) (*paygate.Session, error)
}

type Config struct {
	WebhookSecret string
	// Tolerance bounds the age of a notification signature.
	Tolerance  time.Duration
	SessionTTL time.Duration
	FeePercent decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = 300 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.FeePercent.IsZero() {
		c.FeePercent = DefaultFeePercent
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	return c
}

type Service struct {
	store   repository.Store
	gateway Gateway
	schemas *schema.Registry
	clock   clockwork.Clock
	cfg     Config
	logger  *slog.Logger
}

func NewService(store repository.Store, gateway Gateway, schemas *schema.Registry, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		gateway: gateway,
		schemas: schemas,
		clock:   clock,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}
