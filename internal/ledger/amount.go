package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateAmount checks amount is positive and fits within places decimals.
func ValidateAmount(amount decimal.Decimal, places int32) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(places)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, places)
	}
	return nil
}

func validateTransfer(req TransferRequest, places int32) error {
	if req.FromWalletID == req.ToWalletID {
		return fmt.Errorf("%w: source and destination are the same wallet", ErrInvalidAmount)
	}
	if err := ValidateAmount(req.Amount, places); err != nil {
		return err
	}
	if req.Fee.IsNegative() || req.Discount.IsNegative() || req.Discount.GreaterThan(req.Fee) {
		return fmt.Errorf("%w: fee and discount must satisfy 0 <= discount <= fee", ErrInvalidAmount)
	}
	if !req.Fee.Equal(req.Fee.Truncate(places)) || !req.Discount.Equal(req.Discount.Truncate(places)) {
		return fmt.Errorf("%w: fee exceeds wallet precision", ErrInvalidAmount)
	}
	return nil
}

func postingType(base TxType, p Posting) (TxType, error) {
	switch {
	case p.Type == "" || p.Type == base:
		return base, nil
	case p.Type == TypeInterest && base == TypeDeposit:
		return TypeInterest, nil
	default:
		return "", fmt.Errorf("%w: %s cannot be posted as %s", ErrInvalidAmount, p.Type, base)
	}
}
