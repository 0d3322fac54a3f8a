package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garnizeh/bidflow/pkg/models"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// Queue is the job storage the worker pool polls.
type Queue interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (string, error)
	FetchNext(ctx context.Context, now time.Time) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}

// ErrMaxAttempts indicates the job reached max attempts
var ErrMaxAttempts = errors.New("max attempts reached")

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// simple exponential: base 2^attempt seconds, capped
	if attempt > 9 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}

// PayoutPayload is carried by milestone.payout jobs.
type PayoutPayload struct {
	ContractID   string          `json:"contract_id"`
	MilestoneID  string          `json:"milestone_id"`
	ContractorID string          `json:"contractor_id"`
	Stage        string          `json:"stage"`
	Amount       decimal.Decimal `json:"amount"`
}

// ContractPayload is carried by contract.created and contract.completed jobs.
type ContractPayload struct {
	ContractID   string          `json:"contract_id"`
	ClaimID      string          `json:"claim_id"`
	ContractorID string          `json:"contractor_id"`
	Value        decimal.Decimal `json:"value"`
}

// NewJob builds an outbox job with a JSON payload. Enqueue it through the
// transaction that makes the change it reports.
func NewJob(typ string, payload any) (*models.BackgroundJob, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &models.BackgroundJob{Type: typ, Payload: b}, nil
}

func decode[T any](j *models.BackgroundJob) (T, error) {
	var v T
	if err := json.Unmarshal(j.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return v, nil
}
