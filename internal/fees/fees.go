// Package fees computes the buyer protection fee and the resulting split
// between platform and seller. All amounts are minor units; decimal math is
// confined to this package so rounding happens exactly once.
package fees

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
)

const (
	// DefaultPercentBasisPoints is the 5% buyer protection rate.
	DefaultPercentBasisPoints int64 = 500
	// DefaultFixedCents is the flat portion added on top of the percentage.
	DefaultFixedCents int64 = 100
)

// Schedule is the fee formula applied to a purchase.
type Schedule struct {
	PercentBasisPoints int64
	FixedCents         int64
}

// DefaultSchedule returns the platform's standard buyer fee schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		PercentBasisPoints: DefaultPercentBasisPoints,
		FixedCents:         DefaultFixedCents,
	}
}

// Breakdown is the settled split of a purchase. SellerPayoutCents equals the
// subtotal: the buyer fee is the platform's, never the seller's.
type Breakdown struct {
	SubtotalCents     int64 `json:"subtotal_cents"`
	BuyerFeeCents     int64 `json:"buyer_fee_cents"`
	TotalChargeCents  int64 `json:"total_charge_cents"`
	SellerPayoutCents int64 `json:"seller_payout_cents"`
}

// Compute applies the schedule to an item price plus shipping. The percentage
// is taken on the combined subtotal, rounded half-up to the nearest cent, then
// the fixed portion is added.
func Compute(itemPriceCents, shippingCents int64, schedule Schedule) (Breakdown, error) {
	if itemPriceCents < 0 {
		return Breakdown{}, apperrors.New(apperrors.CodeValidation, "item price cannot be negative")
	}
	if shippingCents < 0 {
		return Breakdown{}, apperrors.New(apperrors.CodeValidation, "shipping cost cannot be negative")
	}
	if schedule.PercentBasisPoints < 0 || schedule.FixedCents < 0 {
		return Breakdown{}, apperrors.New(apperrors.CodeValidation, "fee schedule cannot be negative")
	}

	subtotal := itemPriceCents + shippingCents

	// Round rounds half away from zero, which is half-up for positive amounts.
	rate := decimal.NewFromInt(schedule.PercentBasisPoints).Shift(-4)
	percentFee := decimal.NewFromInt(subtotal).Mul(rate).Round(0)

	feeCents := percentFee.IntPart() + schedule.FixedCents

	return Breakdown{
		SubtotalCents:     subtotal,
		BuyerFeeCents:     feeCents,
		TotalChargeCents:  subtotal + feeCents,
		SellerPayoutCents: subtotal,
	}, nil
}
