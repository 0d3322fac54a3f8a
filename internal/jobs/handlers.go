package jobs

import (
	"context"
	"log/slog"

	"github.com/garnizeh/bidflow/pkg/models"
)

// PayoutReleaser moves a paid milestone's funds to the contractor.
// Implementations must be idempotent on the milestone id, because a job may
// run more than once.
type PayoutReleaser interface {
	ReleasePayout(ctx context.Context, p PayoutPayload) error
}

// LogReleaser records payouts without moving money. Used when no payout
// provider is configured.
type LogReleaser struct {
	Logger *slog.Logger
}

func (r LogReleaser) ReleasePayout(_ context.Context, p PayoutPayload) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("payout recorded",
		slog.String("contract_id", p.ContractID),
		slog.String("milestone_id", p.MilestoneID),
		slog.String("amount", p.Amount.StringFixed(2)),
	)
	return nil
}

// Handlers returns the handler set for every outbox job type.
func Handlers(releaser PayoutReleaser, logger *slog.Logger) map[string]Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if releaser == nil {
		releaser = LogReleaser{Logger: logger}
	}

	contractNotice := func(ctx context.Context, j *models.BackgroundJob) error {
		p, err := decode[ContractPayload](j)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "contract event",
			slog.String("type", j.Type),
			slog.String("contract_id", p.ContractID),
			slog.String("claim_id", p.ClaimID),
			slog.String("contractor_id", p.ContractorID),
		)
		return nil
	}

	return map[string]Handler{
		models.JobMilestonePayout: func(ctx context.Context, j *models.BackgroundJob) error {
			p, err := decode[PayoutPayload](j)
			if err != nil {
				return err
			}
			return releaser.ReleasePayout(ctx, p)
		},
		models.JobContractCreated:   contractNotice,
		models.JobContractCompleted: contractNotice,
	}
}
