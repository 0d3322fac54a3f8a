package payments

import (
	"context"
	"log/slog"

	"github.com/garnizeh/bidflow/internal/jobs"
	"github.com/garnizeh/bidflow/pkg/paygate"
)

// Transferer is the part of the gateway payouts rely on.
type Transferer interface {
	CreateTransfer(ctx context.Context, p paygate.TransferParams) (*paygate.Transfer, error)
}

// GatewayReleaser pays milestones out as gateway transfers to the
// contractor's connected account. The transfer is keyed on the milestone,
// so a retried job never pays twice.
type GatewayReleaser struct {
	gateway  Transferer
	currency string
	logger   *slog.Logger
}

var _ jobs.PayoutReleaser = (*GatewayReleaser)(nil)

func NewGatewayReleaser(gateway Transferer, currency string, logger *slog.Logger) *GatewayReleaser {
	if currency == "" {
		currency = "usd"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayReleaser{gateway: gateway, currency: currency, logger: logger}
}

func (r *GatewayReleaser) ReleasePayout(ctx context.Context, p jobs.PayoutPayload) error {
	t, err := r.gateway.CreateTransfer(ctx, paygate.TransferParams{
		Destination: p.ContractorID,
		Amount:      p.Amount,
		Currency:    r.currency,
		Metadata: map[string]string{
			"contract_id":  p.ContractID,
			"milestone_id": p.MilestoneID,
			"stage":        p.Stage,
		},
		IdempotencyKey: "payout-" + p.MilestoneID,
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "payout released",
		slog.String("milestone_id", p.MilestoneID),
		slog.String("transfer_id", t.ID),
		slog.String("amount", p.Amount.StringFixed(2)),
	)
	return nil
}
