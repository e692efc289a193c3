package events

import (
	"context"
	"sync"
)

// Batch holds events produced inside a unit of work until it commits.
// Flush forwards them to the underlying publisher; Discard drops them.
type Batch struct {
	real Publisher

	mu      sync.Mutex
	pending []Event
}

// NewBatch creates a batch in front of real.
func NewBatch(real Publisher) *Batch {
	return &Batch{real: real}
}

// Emit stages ev.
func (b *Batch) Emit(_ context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, ev)
}

// Len returns the number of staged events.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush is called after a successful commit.
func (b *Batch) Flush(ctx context.Context) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, ev := range pending {
		b.real.Emit(ctx, ev)
	}
}

// Discard is called after a rollback.
func (b *Batch) Discard() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}
