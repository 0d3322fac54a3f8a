// Package scheduling hands out booking links for claim meetings and records
// the meetings the scheduling provider reports back.
package scheduling

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

type Config struct {
	WebhookSecret string
	Tolerance     time.Duration
	BookingTTL    time.Duration
	// Link is the provider's booking page. The booking token is added as
	// its utm_content parameter.
	Link string
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = 180 * time.Second
	}
	if c.BookingTTL <= 0 {
		c.BookingTTL = 24 * time.Hour
	}
	return c
}

type Service struct {
	store   repository.Store
	schemas *schema.Registry
	clock   clockwork.Clock
	cfg     Config
	logger  *slog.Logger
}

func NewService(store repository.Store, schemas *schema.Registry, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, schemas: schemas, clock: clock, cfg: cfg.withDefaults(), logger: logger}
}

type BookingRequest struct {
	ClaimID string `json:"claimId"`
}

type BookingResult struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateBooking opens a booking attempt for a claim and returns the link the
// caller books through. The claim owner and the claim's contractors may book.
func (s *Service) CreateBooking(ctx context.Context, actor models.Actor, req BookingRequest) (*BookingResult, error) {
	if req.ClaimID == "" {
		return nil, apperr.New(apperr.ErrValidation, "claimId is required")
	}
	claim, err := s.store.GetClaim(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, apperr.New(apperr.ErrNotFound, "claim %s not found", req.ClaimID)
	}
	if actor.ID != claim.OwnerID && actor.Role != models.RoleAdmin {
		p, err := s.store.GetParticipant(ctx, claim.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Status == models.ParticipantRejected {
			return nil, apperr.New(apperr.ErrForbidden, "not a party to this claim")
		}
	}

	now := s.clock.Now().UTC()
	token, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("booking token: %w", err)
	}
	link, err := bookingLink(s.cfg.Link, token.String())
	if err != nil {
		return nil, err
	}

	b := &models.BookingAttempt{
		Token:       token.String(),
		ClaimID:     claim.ID,
		RequesterID: actor.ID,
		Status:      models.BookingPending,
		ExpiresAt:   now.Add(s.cfg.BookingTTL),
		CreatedAt:   now,
	}
	if err := s.store.CreateBookingAttempt(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking attempt: %w", err)
	}

	s.logger.Info("booking attempt created",
		slog.String("booking_id", b.ID),
		slog.String("claim_id", claim.ID),
	)
	return &BookingResult{ID: b.ID, Token: b.Token, Link: link, ExpiresAt: b.ExpiresAt}, nil
}

func bookingLink(base, token string) (string, error) {
	if base == "" {
		return "", nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("scheduling link: %w", err)
	}
	q := u.Query()
	q.Set("utm_content", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
