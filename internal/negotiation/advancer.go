// Package negotiation advances closed auctions into a two-phase negotiation
// (interest, then intent) with the winning bidder.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// Outcome reports what a single advancement did.
type Outcome string

const (
	OutcomeClosed  Outcome = "closed"
	OutcomeExpired Outcome = "expired"
	// OutcomeCancelled means the claim was awarded outside the auction, so
	// no negotiation is opened.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeSkipped means the auction was not due or another writer got
	// there first.
	OutcomeSkipped Outcome = "skipped"
)

// SelectWinningBid picks the lowest active bid. Equal amounts go to the
// earliest bid, then the lowest id, so the choice is deterministic.
func SelectWinningBid(bids []models.Bid) (models.Bid, bool) {
	var (
		best  models.Bid
		found bool
	)
	for _, b := range bids {
		if b.Status != models.BidActive {
			continue
		}
		if !found || better(b, best) {
			best, found = b, true
		}
	}
	return best, found
}

func better(a, b models.Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Advancer moves a past-due auction to closed (opening an IOI negotiation
// with the winner) or expired when nobody bid. It is safe to run for the same
// auction from several processes at once.
type Advancer struct {
	store  repository.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewAdvancer(store repository.Store, clock clockwork.Clock, logger *slog.Logger) *Advancer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advancer{store: store, clock: clock, logger: logger}
}

// Advance applies one advancement step to the auction.
func (a *Advancer) Advance(ctx context.Context, auctionID string) (Outcome, error) {
	now := a.clock.Now().UTC()
	outcome := OutcomeSkipped

	err := a.store.InTx(ctx, func(tx repository.Tx) error {
		outcome = OutcomeSkipped

		auction, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auction == nil {
			return apperr.New(apperr.ErrNotFound, "auction %s not found", auctionID)
		}
		if auction.Status != models.AuctionOpen || !auction.EndTime.Before(now) {
			return nil
		}

		claim, err := tx.GetClaim(ctx, auction.ClaimID)
		if err != nil {
			return err
		}
		if claim == nil || claim.Status != models.ClaimOpen {
			cancelled, err := tx.SetAuctionStatus(ctx, auctionID, models.AuctionOpen, models.AuctionCancelled, now)
			if err != nil {
				return fmt.Errorf("cancel auction: %w", err)
			}
			if cancelled {
				outcome = OutcomeCancelled
			}
			return nil
		}

		bids, err := tx.ListActiveBids(ctx, auctionID)
		if err != nil {
			return err
		}
		winner, ok := SelectWinningBid(bids)
		if !ok {
			expired, err := tx.SetAuctionStatus(ctx, auctionID, models.AuctionOpen, models.AuctionExpired, now)
			if err != nil {
				return fmt.Errorf("expire auction: %w", err)
			}
			if expired {
				outcome = OutcomeExpired
			}
			return nil
		}

		closed, err := tx.SetAuctionStatus(ctx, auctionID, models.AuctionOpen, models.AuctionClosed, now)
		if err != nil {
			return fmt.Errorf("close auction: %w", err)
		}
		if !closed {
			return nil
		}

		if err := tx.CreateNegotiation(ctx, &models.Negotiation{
			AuctionID: auctionID,
			BidID:     winner.ID,
			Phase:     models.PhaseIOI,
			Status:    models.NegotiationPending,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create negotiation: %w", err)
		}
		outcome = OutcomeClosed
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent advancement already opened the negotiation
		a.logger.Info("auction already advanced", slog.String("auction_id", auctionID))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeSkipped, err
	}

	if outcome != OutcomeSkipped {
		a.logger.Info("auction advanced", slog.String("auction_id", auctionID), slog.String("outcome", string(outcome)))
	}
	return outcome, nil
}
