package payments

import "github.com/shopspring/decimal"

// DefaultFeePercent is the platform fee added on top of the bid.
var DefaultFeePercent = decimal.NewFromInt(5)

var hundred = decimal.NewFromInt(100)

// Quote is what the owner is charged for a bid.
type Quote struct {
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Total       decimal.Decimal `json:"total"`
}

// ComputeQuote adds feePercent to amount. The total is rounded to cents and
// the fee is whatever makes amount + fee equal the total exactly.
func ComputeQuote(amount, feePercent decimal.Decimal) Quote {
	amount = amount.Round(2)
	total := amount.Mul(hundred.Add(feePercent)).Div(hundred).Round(2)
	return Quote{Amount: amount, PlatformFee: total.Sub(amount), Total: total}
}
