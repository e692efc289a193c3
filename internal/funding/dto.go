package funding

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/ledger"
)

// SettlementRequest is the payment gateway's settlement notification.
type SettlementRequest struct {
	Reference string          `json:"reference"`
	WalletID  string          `json:"wallet_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Channel   string          `json:"channel"`
}

// SettlementResponse acknowledges a processed settlement.
type SettlementResponse struct {
	Status      string             `json:"status"`
	Transaction ledger.Transaction `json:"transaction"`
	Balance     decimal.Decimal    `json:"balance"`
}
