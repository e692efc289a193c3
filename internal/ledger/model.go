package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnerKind discriminates the entity owning a wallet.
type OwnerKind string

const (
	OwnerUser      OwnerKind = "user"
	OwnerSaving    OwnerKind = "saving"
	OwnerChallenge OwnerKind = "challenge"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerUser, OwnerSaving, OwnerChallenge:
		return true
	default:
		return false
	}
}

// Owner identifies the entity a wallet belongs to.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func UserOwner(id uuid.UUID) Owner      { return Owner{Kind: OwnerUser, ID: id} }
func SavingOwner(id uuid.UUID) Owner    { return Owner{Kind: OwnerSaving, ID: id} }
func ChallengeOwner(id uuid.UUID) Owner { return Owner{Kind: OwnerChallenge, ID: id} }

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// DefaultSlug names the wallet every owner gets first.
const DefaultSlug = "default"

// WalletSpec describes a wallet to create lazily.
type WalletSpec struct {
	Name          string
	Slug          string
	DecimalPlaces int32
	Meta          map[string]any
}

// Wallet is a named balance holder.
type Wallet struct {
	ID            uuid.UUID       `json:"id"`
	Owner         Owner           `json:"owner"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Balance       decimal.Decimal `json:"balance"`
	DecimalPlaces int32           `json:"decimal_places"`
	Meta          map[string]any  `json:"meta,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TxType classifies a ledger entry.
type TxType string

const (
	TypeDeposit  TxType = "deposit"
	TypeWithdraw TxType = "withdraw"
	TypeTransfer TxType = "transfer"
	TypeInterest TxType = "interest"
)

// Transaction is an immutable ledger entry. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	WalletID  uuid.UUID       `json:"wallet_id"`
	Type      TxType          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Confirmed bool            `json:"confirmed"`
	Reference string          `json:"reference,omitempty"`
	Meta      map[string]any  `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	// Replayed is set when the reference had already been posted and the
	// original entry is returned instead of a new one.
	Replayed bool `json:"replayed,omitempty"`
}

// Posting carries the caller-supplied context of a deposit or withdrawal.
type Posting struct {
	// Reference makes the posting idempotent when non-empty.
	Reference string
	Meta      map[string]any
	// Type overrides the entry type. Only TypeInterest is accepted, and
	// only on deposits.
	Type TxType
}

// ClientReference scopes a reference chosen by an API caller to that caller,
// keeping it apart from system references such as "gateway:" and
// "interest:". Empty stays empty.
func ClientReference(userID uuid.UUID, ref string) string {
	if ref == "" {
		return ""
	}
	return "client:" + userID.String() + ":" + ref
}

// TransferStatus describes what a transfer paid for.
type TransferStatus string

const (
	StatusTransfer TransferStatus = "transfer"
	StatusPaid     TransferStatus = "paid"
)

// TransferRequest is the two-leg primitive the transfer orchestrator posts.
// The withdrawal leg is Amount+Fee-Discount, the deposit leg is Amount.
type TransferRequest struct {
	FromWalletID uuid.UUID
	ToWalletID   uuid.UUID
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	Discount     decimal.Decimal
	Status       TransferStatus
	Reference    string
	Meta         map[string]any
}

// Debit is the amount taken from the source wallet.
func (r TransferRequest) Debit() decimal.Decimal {
	return r.Amount.Add(r.Fee).Sub(r.Discount)
}

// Transfer links the two legs of a wallet-to-wallet movement.
type Transfer struct {
	ID           uuid.UUID       `json:"id"`
	WithdrawID   uuid.UUID       `json:"withdraw_id"`
	DepositID    uuid.UUID       `json:"deposit_id"`
	Status       TransferStatus  `json:"status"`
	From         Owner           `json:"from"`
	To           Owner           `json:"to"`
	FromWalletID uuid.UUID       `json:"from_wallet_id"`
	ToWalletID   uuid.UUID       `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Discount     decimal.Decimal `json:"discount"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Replayed     bool            `json:"replayed,omitempty"`

	// Legs are populated for freshly posted transfers.
	Withdraw Transaction `json:"-"`
	Deposit  Transaction `json:"-"`
}
