package wallet

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/ledger"
)

// ErrNotOwner is returned when the caller does not control the wallet.
var ErrNotOwner = errors.New("wallet belongs to another user")

// PostingInput describes a deposit or withdrawal requested through the API.
type PostingInput struct {
	WalletID    uuid.UUID
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Description string
	// DestinationAccount names the external account a withdrawal pays out to.
	DestinationAccount string
}

// Result is a posted transaction and the wallet balance after it.
type Result struct {
	Transaction ledger.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}

// Balance is a point-in-time wallet balance.
type Balance struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	Amount        decimal.Decimal `json:"balance"`
	DecimalPlaces int32           `json:"decimal_places"`
}
