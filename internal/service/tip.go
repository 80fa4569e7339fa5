package service

import (
	"errors"

	"github.com/brasaspos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by tip resolution.
var (
	ErrInvalidTipMode       = errors.New("invalid tip mode")
	ErrNegativeTipAmount    = errors.New("tip amount must be >= 0")
	ErrNegativeTipPercent   = errors.New("tip percentage must be >= 0")
	ErrTipAmountNotAllowed  = errors.New("amount is only valid in FIXED mode")
	ErrTipPercentNotAllowed = errors.New("percentage is only valid in PERCENTAGE mode")
)

// TipSelection is one tip choice. The modes are mutually exclusive: picking
// a mode clears whatever the other mode held, so the last selection wins.
type TipSelection struct {
	Mode       string
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// PercentTip selects a percentage-of-subtotal tip.
func PercentTip(pct decimal.Decimal) TipSelection {
	return TipSelection{Mode: enum.TipModePercentage, Percentage: pct}
}

// FixedTip selects an explicit tip amount.
func FixedTip(amount decimal.Decimal) TipSelection {
	return TipSelection{Mode: enum.TipModeFixed, Amount: amount}
}

// NoTip selects no tip.
func NoTip() TipSelection {
	return TipSelection{Mode: enum.TipModeNone}
}

// Resolve computes the monetary tip for a subtotal. Percentage tips round
// to the nearest whole currency unit; fixed tips pass through unchanged.
func (s TipSelection) Resolve(subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch s.Mode {
	case enum.TipModeNone, "":
		return decimal.Zero, nil
	case enum.TipModePercentage:
		if !s.Amount.IsZero() {
			return decimal.Zero, ErrTipAmountNotAllowed
		}
		if s.Percentage.IsNegative() {
			return decimal.Zero, ErrNegativeTipPercent
		}
		return s.Percentage.Div(decimal.NewFromInt(100)).Mul(subtotal).Round(0), nil
	case enum.TipModeFixed:
		if !s.Percentage.IsZero() {
			return decimal.Zero, ErrTipPercentNotAllowed
		}
		if s.Amount.IsNegative() {
			return decimal.Zero, ErrNegativeTipAmount
		}
		return s.Amount, nil
	}
	return decimal.Zero, ErrInvalidTipMode
}
