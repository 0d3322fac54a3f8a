// Package scheduler periodically advances auctions whose bidding window has
// ended.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 500
)

// AuctionLister pages through open auctions whose end time has passed,
// ordered by (end time, id) and starting after the cursor.
type AuctionLister interface {
	ListDueAuctions(ctx context.Context, now time.Time, after repository.AuctionCursor, limit int) ([]models.Auction, error)
}

// Advancer applies one advancement step to an auction.
type Advancer interface {
	Advance(ctx context.Context, auctionID string) (negotiation.Outcome, error)
}

// Summary counts what one tick did.
type Summary struct {
	Scanned   int `json:"scanned"`
	Closed    int `json:"closed"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Scheduler struct {
	auctions  AuctionLister
	advancer  Advancer
	clock     clockwork.Clock
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	// OnTick, when set, receives the summary of every tick run by Run.
	OnTick func(Summary)
}

func New(auctions AuctionLister, advancer Advancer, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		auctions:  auctions,
		advancer:  advancer,
		clock:     clock,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Run ticks every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("auction scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auction scheduler stopped")
			return
		case <-ticker.Chan():
			sum := s.Tick(ctx)
			if s.OnTick != nil {
				s.OnTick(sum)
			}
		}
	}
}

// Tick advances every past-due auction once, a page of BatchSize at a time.
// Failures are logged and counted; the auction stays open and is picked up
// again by the next tick.
func (s *Scheduler) Tick(ctx context.Context) Summary {
	var (
		sum   Summary
		after repository.AuctionCursor
	)
	now := s.clock.Now().UTC()

	for ctx.Err() == nil {
		due, err := s.auctions.ListDueAuctions(ctx, now, after, s.batchSize)
		if err != nil {
			s.logger.Error("list due auctions", slog.Any("err", err))
			sum.Failed++
			break
		}
		sum.Scanned += len(due)

		for _, a := range due {
			if ctx.Err() != nil {
				break
			}
			s.advance(ctx, a.ID, &sum)
		}

		if len(due) < s.batchSize {
			break
		}
		last := due[len(due)-1]
		after = repository.AuctionCursor{EndTime: last.EndTime, ID: last.ID}
	}

	if sum.Scanned > 0 {
		s.logger.Info("auction scheduler tick",
			slog.Int("scanned", sum.Scanned),
			slog.Int("closed", sum.Closed),
			slog.Int("expired", sum.Expired),
			slog.Int("cancelled", sum.Cancelled),
			slog.Int("failed", sum.Failed),
		)
	}
	return sum
}

func (s *Scheduler) advance(ctx context.Context, auctionID string, sum *Summary) {
	outcome, err := s.advancer.Advance(ctx, auctionID)
	if err != nil {
		sum.Failed++
		s.logger.Error("advance auction", slog.String("auction_id", auctionID), slog.Any("err", err))
		return
	}
	switch outcome {
	case negotiation.OutcomeClosed:
		sum.Closed++
	case negotiation.OutcomeExpired:
		sum.Expired++
	case negotiation.OutcomeCancelled:
		sum.Cancelled++
	default:
		sum.Skipped++
	}
}
