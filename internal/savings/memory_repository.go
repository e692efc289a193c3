package savings

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu         sync.RWMutex
	plans      map[uuid.UUID]Plan
	savings    map[uuid.UUID]Saving
	challenges map[uuid.UUID]UserChallenge
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		plans:      make(map[uuid.UUID]Plan),
		savings:    make(map[uuid.UUID]Saving),
		challenges: make(map[uuid.UUID]UserChallenge),
	}
}

func (r *memoryRepository) CreatePlan(_ context.Context, plan Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plans[plan.ID]; !exists {
		r.plans[plan.ID] = plan
	}
	return nil
}

func (r *memoryRepository) GetPlan(_ context.Context, id uuid.UUID) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (r *memoryRepository) CreateSaving(_ context.Context, s Saving) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savings[s.ID] = s
	return nil
}

func (r *memoryRepository) GetSaving(_ context.Context, id uuid.UUID) (Saving, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.savings[id]
	if !ok {
		return Saving{}, ErrSavingNotFound
	}
	return s, nil
}

func (r *memoryRepository) CreateUserChallenge(_ context.Context, uc UserChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.challenges {
		if existing.SavingID == uc.SavingID && existing.UserID == uc.UserID {
			return ErrAlreadyJoined
		}
	}
	r.challenges[uc.ID] = uc
	return nil
}

func (r *memoryRepository) GetUserChallenge(_ context.Context, id uuid.UUID) (UserChallenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uc, ok := r.challenges[id]
	if !ok {
		return UserChallenge{}, ErrChallengeNotFound
	}
	return uc, nil
}

func (r *memoryRepository) Participants(_ context.Context, savingID uuid.UUID) ([]UserChallenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []UserChallenge
	for _, uc := range r.challenges {
		if uc.SavingID == savingID {
			out = append(out, uc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *memoryRepository) ActiveSavings(_ context.Context, challenge bool, after uuid.UUID, limit int) ([]Saving, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Saving
	for _, s := range r.savings {
		if s.Active && s.IsChallenge == challenge && bytes.Compare(s.ID[:], after[:]) > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) MarkMatured(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.savings[id]
	if !ok {
		return ErrSavingNotFound
	}
	if !s.Active {
		return ErrAlreadyMatured
	}
	s.Active = false
	s.MaturedAt = &at
	r.savings[id] = s
	return nil
}

func (r *memoryRepository) DeleteSaving(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.savings[id]; !ok {
		return ErrSavingNotFound
	}
	delete(r.savings, id)
	for ucID, uc := range r.challenges {
		if uc.SavingID == id {
			delete(r.challenges, ucID)
		}
	}
	return nil
}
