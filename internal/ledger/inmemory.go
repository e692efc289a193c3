package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ownerSlug struct {
	owner Owner
	slug  string
}

// InMemoryLedger is a concurrency-safe ledger for unit tests and local
// development. All mutations are serialized behind one mutex.
type InMemoryLedger struct {
	observers
	opts options

	mu        sync.Mutex
	wallets   map[uuid.UUID]*Wallet
	byOwner   map[ownerSlug]uuid.UUID
	entries   map[uuid.UUID][]Transaction
	refs      map[string]Transaction
	transfers map[string]Transfer
}

// NewInMemory creates an in-memory ledger.
func NewInMemory(opts ...Option) *InMemoryLedger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemoryLedger{
		observers: observers{logger: o.logger},
		opts:      o,
		wallets:   make(map[uuid.UUID]*Wallet),
		byOwner:   make(map[ownerSlug]uuid.UUID),
		entries:   make(map[uuid.UUID][]Transaction),
		refs:      make(map[string]Transaction),
		transfers: make(map[string]Transfer),
	}
}

func (l *InMemoryLedger) EnsureWallet(_ context.Context, owner Owner, spec WalletSpec) (Wallet, error) {
	if !owner.Kind.Valid() || owner.ID == uuid.Nil {
		return Wallet{}, fmt.Errorf("invalid wallet owner %s", owner)
	}
	if spec.Slug == "" {
		spec.Slug = DefaultSlug
	}
	if spec.Name == "" {
		spec.Name = spec.Slug
	}
	if spec.DecimalPlaces <= 0 {
		spec.DecimalPlaces = l.opts.decimalPlaces
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ownerSlug{owner: owner, slug: spec.Slug}
	if id, ok := l.byOwner[key]; ok {
		return *l.wallets[id], nil
	}

	now := l.opts.now()
	w := &Wallet{
		ID:            uuid.New(),
		Owner:         owner,
		Name:          spec.Name,
		Slug:          spec.Slug,
		Balance:       decimal.Zero,
		DecimalPlaces: spec.DecimalPlaces,
		Meta:          spec.Meta,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.wallets[w.ID] = w
	l.byOwner[key] = w.ID
	return *w, nil
}

func (l *InMemoryLedger) Wallet(_ context.Context, id uuid.UUID) (Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *w, nil
}

func (l *InMemoryLedger) WalletByOwner(_ context.Context, owner Owner, slug string) (Wallet, error) {
	if slug == "" {
		slug = DefaultSlug
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byOwner[ownerSlug{owner: owner, slug: slug}]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *l.wallets[id], nil
}

func (l *InMemoryLedger) Balance(_ context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	return w.Balance, nil
}

func (l *InMemoryLedger) Transactions(_ context.Context, walletID uuid.UUID, limit int) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}

	entries := l.entries[walletID]
	limit = historyLimit(limit)
	out := make([]Transaction, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (l *InMemoryLedger) Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error) {
	return l.post(ctx, walletID, amount, p, TypeDeposit)
}

func (l *InMemoryLedger) Withdraw(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error) {
	return l.post(ctx, walletID, amount, p, TypeWithdraw)
}

func (l *InMemoryLedger) post(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting, base TxType) (Transaction, error) {
	typ, err := postingType(base, p)
	if err != nil {
		return Transaction{}, err
	}

	entry, wallet, err := func() (Transaction, Wallet, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		w, ok := l.wallets[walletID]
		if !ok {
			return Transaction{}, Wallet{}, ErrWalletNotFound
		}

		if p.Reference != "" {
			if existing, found := l.refs[p.Reference]; found {
				if existing.WalletID != walletID || existing.Type != typ {
					return Transaction{}, Wallet{}, fmt.Errorf("%w: %s", ErrReferenceConflict, p.Reference)
				}
				existing.Replayed = true
				return existing, *w, nil
			}
			if _, found := l.transfers[p.Reference]; found {
				return Transaction{}, Wallet{}, fmt.Errorf("%w: %s", ErrReferenceConflict, p.Reference)
			}
		}

		if err := ValidateAmount(amount, w.DecimalPlaces); err != nil {
			return Transaction{}, Wallet{}, err
		}

		signed := amount
		if base == TypeWithdraw {
			if w.Balance.LessThan(amount) {
				return Transaction{}, Wallet{}, ErrInsufficientBalance
			}
			signed = amount.Neg()
		}

		entry := l.appendLocked(w, typ, signed, p.Reference, p.Meta)
		return entry, *w, nil
	}()
	if err != nil {
		return Transaction{}, err
	}

	if !entry.Replayed {
		l.notify(ctx, wallet, entry)
	}
	return entry, nil
}

func (l *InMemoryLedger) Transfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	if req.Status == "" {
		req.Status = StatusTransfer
	}

	t, from, to, err := func() (Transfer, Wallet, Wallet, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if req.FromWalletID == req.ToWalletID {
			return Transfer{}, Wallet{}, Wallet{}, fmt.Errorf("%w: source and destination are the same wallet", ErrInvalidAmount)
		}
		from, ok := l.wallets[req.FromWalletID]
		if !ok {
			return Transfer{}, Wallet{}, Wallet{}, fmt.Errorf("source: %w", ErrWalletNotFound)
		}
		to, ok := l.wallets[req.ToWalletID]
		if !ok {
			return Transfer{}, Wallet{}, Wallet{}, fmt.Errorf("destination: %w", ErrWalletNotFound)
		}

		if req.Reference != "" {
			if existing, found := l.transfers[req.Reference]; found {
				if !sameTransfer(existing, req) {
					return Transfer{}, Wallet{}, Wallet{}, fmt.Errorf("%w: %s", ErrReferenceConflict, req.Reference)
				}
				existing.Replayed = true
				return existing, *from, *to, nil
			}
			if _, found := l.refs[req.Reference]; found {
				return Transfer{}, Wallet{}, Wallet{}, fmt.Errorf("%w: %s", ErrReferenceConflict, req.Reference)
			}
		}

		if err := validateTransfer(req, from.DecimalPlaces); err != nil {
			return Transfer{}, Wallet{}, Wallet{}, err
		}
		if err := ValidateAmount(req.Amount, to.DecimalPlaces); err != nil {
			return Transfer{}, Wallet{}, Wallet{}, err
		}
		debit := req.Debit()
		if from.Balance.LessThan(debit) {
			return Transfer{}, Wallet{}, Wallet{}, ErrInsufficientBalance
		}

		id := uuid.New()
		meta := withTransferID(req.Meta, id)
		withdraw := l.appendLocked(from, TypeTransfer, debit.Neg(), "", meta)
		deposit := l.appendLocked(to, TypeTransfer, req.Amount, "", meta)

		t := Transfer{
			ID:           id,
			WithdrawID:   withdraw.ID,
			DepositID:    deposit.ID,
			Status:       req.Status,
			From:         from.Owner,
			To:           to.Owner,
			FromWalletID: from.ID,
			ToWalletID:   to.ID,
			Amount:       req.Amount,
			Fee:          req.Fee,
			Discount:     req.Discount,
			Reference:    req.Reference,
			CreatedAt:    l.opts.now(),
			Withdraw:     withdraw,
			Deposit:      deposit,
		}
		if req.Reference != "" {
			l.transfers[req.Reference] = t
		}
		return t, *from, *to, nil
	}()
	if err != nil {
		return Transfer{}, err
	}

	if !t.Replayed {
		l.notify(ctx, from, t.Withdraw)
		l.notify(ctx, to, t.Deposit)
	}
	return t, nil
}

// appendLocked records an entry and moves the balance. l.mu must be held.
func (l *InMemoryLedger) appendLocked(w *Wallet, typ TxType, signed decimal.Decimal, reference string, meta map[string]any) Transaction {
	now := l.opts.now()
	entry := Transaction{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Type:      typ,
		Amount:    signed,
		Confirmed: true,
		Reference: reference,
		Meta:      meta,
		CreatedAt: now,
	}
	l.entries[w.ID] = append(l.entries[w.ID], entry)
	if reference != "" {
		l.refs[reference] = entry
	}
	w.Balance = w.Balance.Add(signed)
	w.UpdatedAt = now
	return entry
}

// Wallets returns a snapshot of every wallet ordered by id.
func (l *InMemoryLedger) Wallets() []Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Wallet, 0, len(l.wallets))
	for _, w := range l.wallets {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

// Sum adds up every confirmed entry of the wallet.
func (l *InMemoryLedger) Sum(walletID uuid.UUID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, e := range l.entries[walletID] {
		if e.Confirmed {
			total = total.Add(e.Amount)
		}
	}
	return total
}
