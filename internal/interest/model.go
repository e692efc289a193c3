package interest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the per-wallet accrual record. Amount is interest earned but not
// yet credited to the wallet.
type State struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	Amount     decimal.Decimal `json:"amount"`
	LastEarned time.Time       `json:"last_earned"`
	LastPayout time.Time       `json:"last_payout"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Accrued int `json:"accrued"`
	PaidOut int `json:"paid_out"`
	Failed  int `json:"failed"`
	Pages   int `json:"pages"`
}
