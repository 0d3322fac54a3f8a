// Package milestones computes a contract's payout schedule and enforces the
// submit, approve, pay ordering of each milestone.
package milestones

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garnizeh/bidflow/pkg/models"
)

// Stage names in payout order.
const (
	StageDownPayment = "DOWN_PAYMENT"
	StageOne         = "STAGE_1"
	StageTwo         = "STAGE_2"
	StageFinal       = "FINAL_STAGE"
	StageRetainage   = "RETAINAGE"
)

type Stage struct {
	Name    string
	Percent int
}

// Stages is the fixed schedule every contract pays out on.
var Stages = []Stage{
	{StageDownPayment, 20},
	{StageOne, 20},
	{StageTwo, 20},
	{StageFinal, 30},
	{StageRetainage, 10},
}

var hundred = decimal.NewFromInt(100)

// BuildSchedule splits value across the five stages. Each amount is rounded
// to cents and the rounding remainder goes to retainage, so the amounts
// always sum to value.
func BuildSchedule(contractID string, value decimal.Decimal, at time.Time) []models.Milestone {
	out := make([]models.Milestone, 0, len(Stages))
	allocated := decimal.Zero
	for i, st := range Stages {
		var amount decimal.Decimal
		if i == len(Stages)-1 {
			amount = value.Sub(allocated)
		} else {
			amount = value.Mul(decimal.NewFromInt(int64(st.Percent))).Div(hundred).Round(2)
			allocated = allocated.Add(amount)
		}
		out = append(out, models.Milestone{
			ContractID: contractID,
			Stage:      st.Name,
			Seq:        i + 1,
			Percentage: st.Percent,
			Amount:     amount,
			Status:     models.MilestonePending,
			UpdatedAt:  at,
		})
	}
	return out
}
