package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Domain models matching the database schema in db/migrations/00001_init.sql.
// Money fields are decimals in memory and integer cents at rest.

// Claim statuses.
const (
	ClaimOpen   = "OPEN"
	ClaimClosed = "CLOSED"
)

// ClaimParticipant statuses.
const (
	ParticipantPending  = "PENDING"
	ParticipantApproved = "APPROVED"
	ParticipantRejected = "REJECTED"
)

// Auction statuses.
const (
	AuctionOpen      = "open"
	AuctionClosed    = "closed"
	AuctionCancelled = "cancelled"
	AuctionExpired   = "expired"
)

// Bid statuses.
const (
	BidActive    = "active"
	BidWithdrawn = "withdrawn"
)

// Negotiation phases and statuses. Phases only move forward:
// IOI -> LOI -> CONTRACT.
const (
	PhaseIOI      = "IOI"
	PhaseLOI      = "LOI"
	PhaseContract = "CONTRACT"

	NegotiationPending  = "pending"
	NegotiationAccepted = "accepted"
	NegotiationRejected = "rejected"
)

// Contract statuses.
const (
	ContractActive    = "active"
	ContractCompleted = "completed"
)

// Milestone statuses.
const (
	MilestonePending   = "pending"
	MilestoneSubmitted = "submitted"
	MilestoneApproved  = "approved"
	MilestonePaid      = "paid"
)

// Payment statuses.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentExpired   = "EXPIRED"
	PaymentFailed    = "FAILED"
)

// Booking attempt and meeting statuses.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCanceled  = "CANCELED"

	MeetingScheduled = "SCHEDULED"
	MeetingCanceled  = "CANCELED"
)

// Roles carried by authenticated callers.
const (
	RoleOwner      = "owner"
	RoleContractor = "contractor"
	RoleAdmin      = "admin"
)

// Actor is the authenticated caller of a user action.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type Claim struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	WinnerID  *string   `json:"winner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ClaimParticipant struct {
	ID           string    `json:"id"`
	ClaimID      string    `json:"claim_id"`
	ContractorID string    `json:"contractor_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Auction struct {
	ID          string           `json:"id"`
	ClaimID     string           `json:"claim_id"`
	StartingBid decimal.Decimal  `json:"starting_bid"`
	CurrentBid  *decimal.Decimal `json:"current_bid,omitempty"`
	BidCount    int              `json:"bid_count"`
	EndTime     time.Time        `json:"end_time"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type Bid struct {
	ID           string          `json:"id"`
	AuctionID    string          `json:"auction_id"`
	ContractorID string          `json:"contractor_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Negotiation struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	BidID     string    `json:"bid_id"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Contract struct {
	ID           string          `json:"id"`
	ClaimID      string          `json:"claim_id"`
	ContractorID string          `json:"contractor_id"`
	BidID        string          `json:"bid_id"`
	Value        decimal.Decimal `json:"value"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Milestones   []Milestone     `json:"milestones,omitempty"`
}

type Milestone struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Stage       string          `json:"stage"`
	Seq         int             `json:"seq"`
	Percentage  int             `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Payment struct {
	ID              string          `json:"id"`
	BidID           string          `json:"bid_id"`
	ClaimID         string          `json:"claim_id"`
	ContractorID    string          `json:"contractor_id"`
	SessionID       string          `json:"session_id"`
	CheckoutURL     string          `json:"checkout_url"`
	Amount          decimal.Decimal `json:"amount"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	TransactionRef  *string         `json:"transaction_ref,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type BookingAttempt struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	ClaimID     string    `json:"claim_id"`
	RequesterID string    `json:"requester_id"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Meeting struct {
	ID               string     `json:"id"`
	BookingAttemptID string     `json:"booking_attempt_id"`
	EventURI         string     `json:"event_uri"`
	InviteeEmail     string     `json:"invitee_email"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	Status           string     `json:"status"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Background job types written to the outbox.
const (
	JobMilestonePayout   = "milestone.payout"
	JobContractCreated   = "contract.created"
	JobContractCompleted = "contract.completed"
)

// Background job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobRetry     = "retry"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

type BackgroundJob struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
