package repository

import (
	"context"
	"errors"
	"time"

	"github.com/garnizeh/bidflow/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Getters return (nil, nil) when no row matches. Conditional transitions
// report whether a row was changed so callers can tell an applied transition
// from a lost race.

// ErrDuplicate is returned by create operations that collide with a unique
// constraint. Callers treat it as "already done".
var ErrDuplicate = errors.New("duplicate record")

// AuctionCursor is a keyset position in the due-auction order. The zero value
// starts from the beginning.
type AuctionCursor struct {
	EndTime time.Time
	ID      string
}

type ClaimRepo interface {
	CreateClaim(ctx context.Context, c *models.Claim) error
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	// AwardClaim sets the winner and closes the claim while it is still OPEN.
	AwardClaim(ctx context.Context, claimID, winnerID string, at time.Time) (bool, error)
	// UpsertParticipant creates the participant row or updates its status.
	UpsertParticipant(ctx context.Context, claimID, contractorID, status string, at time.Time) error
	GetParticipant(ctx context.Context, claimID, contractorID string) (*models.ClaimParticipant, error)
}

type AuctionRepo interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	// ListDueAuctions returns open auctions ending before now, ordered by
	// (end time, id) and strictly after the cursor.
	ListDueAuctions(ctx context.Context, now time.Time, after AuctionCursor, limit int) ([]models.Auction, error)
	SetAuctionStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error)
	// CreateBid stores the bid and refreshes the auction's lowest bid and count.
	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListActiveBids(ctx context.Context, auctionID string) ([]models.Bid, error)
}

type NegotiationRepo interface {
	CreateNegotiation(ctx context.Context, n *models.Negotiation) error
	GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error)
	// GetLiveNegotiationByAuction returns the non-rejected negotiation, if any.
	GetLiveNegotiationByAuction(ctx context.Context, auctionID string) (*models.Negotiation, error)
	TransitionNegotiation(ctx context.Context, id, fromPhase, fromStatus, toPhase, toStatus string, at time.Time) (bool, error)
}

type ContractRepo interface {
	CreateContract(ctx context.Context, c *models.Contract) error
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	GetContractByClaim(ctx context.Context, claimID string) (*models.Contract, error)
	CompleteContract(ctx context.Context, id string, at time.Time) (bool, error)
	// LockContract takes the contract's row lock for the rest of the
	// transaction. It reports false when the contract does not exist.
	LockContract(ctx context.Context, id string, at time.Time) (bool, error)
}

type MilestoneRepo interface {
	CreateMilestones(ctx context.Context, ms []models.Milestone) error
	ListMilestones(ctx context.Context, contractID string) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, id string) (*models.Milestone, error)
	TransitionMilestone(ctx context.Context, id, from, to string, at time.Time) (bool, error)
	CountUnpaidMilestones(ctx context.Context, contractID string) (int, error)
}

type PaymentRepo interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	GetPendingPaymentByBid(ctx context.Context, bidID string) (*models.Payment, error)
	ListPaymentsByBid(ctx context.Context, bidID string) ([]models.Payment, error)
	// CompletePayment marks the session's payment COMPLETED unless it already is.
	CompletePayment(ctx context.Context, sessionID, transactionRef string, at time.Time) (bool, error)
	ExpirePendingBySession(ctx context.Context, sessionID string, at time.Time) (int64, error)
	FailPendingByIntent(ctx context.Context, intentID string, at time.Time) (int64, error)
	// FailPendingByBid fails the bid's PENDING payment when no intent was recorded for it.
	FailPendingByBid(ctx context.Context, bidID string, at time.Time) (int64, error)
}

type BookingRepo interface {
	CreateBookingAttempt(ctx context.Context, b *models.BookingAttempt) error
	GetBookingAttempt(ctx context.Context, id string) (*models.BookingAttempt, error)
	GetBookingAttemptByToken(ctx context.Context, token string) (*models.BookingAttempt, error)
	SetBookingStatus(ctx context.Context, id, status string, at time.Time) error
	CreateMeeting(ctx context.Context, m *models.Meeting) error
	GetMeetingByEventURI(ctx context.Context, uri string) (*models.Meeting, error)
	// CancelMeeting cancels a SCHEDULED meeting.
	CancelMeeting(ctx context.Context, id string, at time.Time) (bool, error)
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (string, error)
	// FetchNext claims the next runnable job, or returns nil when none is due.
	FetchNext(ctx context.Context, now time.Time) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}

// Tx is the full repository surface bound to one transaction.
type Tx interface {
	ClaimRepo
	AuctionRepo
	NegotiationRepo
	ContractRepo
	MilestoneRepo
	PaymentRepo
	BookingRepo
	JobRepo
}

// Store is the repository surface plus the atomic unit of work. Writes made
// inside fn commit together when fn returns nil, or not at all.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
