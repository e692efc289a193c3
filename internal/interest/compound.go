package interest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DaysPerYear is the compounding frequency.
	DaysPerYear = 365
	// MaxElapsedDays bounds a single accrual window to a century.
	MaxElapsedDays = 36500
	// AccumulatorPlaces is the scale of the uncredited interest accumulator.
	AccumulatorPlaces = 12

	workingPlaces = 28
)

var (
	ErrArithmeticOverflow = errors.New("interest arithmetic overflow")
	ErrNegativeElapsed    = errors.New("negative elapsed time")
	ErrInvalidRate        = errors.New("invalid interest rate")
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(DaysPerYear)
)

// Compound returns the interest earned by principal over days at an annual
// ratePercent, compounded daily: P*(1+(r/100)/365)^d - P. The result is
// rounded to AccumulatorPlaces.
func Compound(principal, ratePercent decimal.Decimal, days int64) (decimal.Decimal, error) {
	switch {
	case days < 0:
		return decimal.Zero, fmt.Errorf("%w: %d days", ErrNegativeElapsed, days)
	case days > MaxElapsedDays:
		return decimal.Zero, fmt.Errorf("%w: %d days exceeds %d", ErrArithmeticOverflow, days, MaxElapsedDays)
	case ratePercent.IsNegative():
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, ratePercent)
	case days == 0 || !principal.IsPositive() || ratePercent.IsZero():
		return decimal.Zero, nil
	}

	daily := ratePercent.DivRound(hundred, workingPlaces).DivRound(daysPerYear, workingPlaces)
	factor := pow(decimal.NewFromInt(1).Add(daily), days)
	return principal.Mul(factor).Sub(principal).Round(AccumulatorPlaces), nil
}

// pow raises base to n by squaring, rounding each step to workingPlaces so
// long windows stay bounded in size.
func pow(base decimal.Decimal, n int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(workingPlaces)
		}
		base = base.Mul(base).Round(workingPlaces)
		n >>= 1
	}
	return result
}
