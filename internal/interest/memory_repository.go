package interest

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/congo_save/internal/ledger"
)

type memoryRepository struct {
	mu      sync.Mutex
	states  map[uuid.UUID]State
	wallets func() []ledger.Wallet
}

// NewMemoryRepository creates an in-memory repository. wallets lists the
// candidate wallets for sweeps, typically (*ledger.InMemoryLedger).Wallets.
func NewMemoryRepository(wallets func() []ledger.Wallet) Repository {
	return &memoryRepository{
		states:  make(map[uuid.UUID]State),
		wallets: wallets,
	}
}

func (r *memoryRepository) Get(_ context.Context, walletID uuid.UUID) (State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[walletID]
	return s, ok, nil
}

func (r *memoryRepository) Apply(_ context.Context, walletID uuid.UUID, now time.Time, fn func(s *State, created bool) error) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[walletID]
	if !ok {
		s = State{WalletID: walletID, LastEarned: now, LastPayout: now, CreatedAt: now}
	}
	if err := fn(&s, !ok); err != nil {
		return State{}, err
	}
	s.UpdatedAt = now
	r.states[walletID] = s
	return s, nil
}

func (r *memoryRepository) InterestWallets(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]ledger.Wallet, error) {
	if r.wallets == nil {
		return nil, nil
	}
	all := r.wallets()
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].ID[:], all[j].ID[:]) < 0 })

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ledger.Wallet
	for _, w := range all {
		if w.Owner.Kind != ledger.OwnerSaving || bytes.Compare(w.ID[:], after[:]) <= 0 {
			continue
		}
		if s, ok := r.states[w.ID]; ok {
			earnedDue := !now.Before(s.LastEarned.Add(24 * time.Hour))
			payoutDue := !now.Before(s.LastPayout.AddDate(0, 1, 0))
			if !earnedDue && !payoutDue {
				continue
			}
		}
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
