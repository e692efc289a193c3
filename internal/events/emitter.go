package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/metrics"
)

const deliveryTimeout = 5 * time.Second

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Emitter queues events and delivers them to its sinks from worker
// goroutines. Emit never blocks: when the queue is full the event is dropped.
type Emitter struct {
	logger logrus.FieldLogger
	sinks  []Sink
	now    func() time.Time

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter creates an emitter with a queue of the given size.
func NewEmitter(logger logrus.FieldLogger, buffer int, sinks ...Sink) *Emitter {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Emitter{
		logger: logger,
		sinks:  sinks,
		now:    time.Now,
		queue:  make(chan Event, buffer),
	}
}

// Start launches the delivery workers.
func (e *Emitter) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for ev := range e.queue {
				e.deliver(ev)
			}
		}()
	}
}

// Emit enqueues ev. It fills in ID and OccurredAt when missing.
func (e *Emitter) Emit(_ context.Context, ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ev, "emitter closed")
		return
	}

	select {
	case e.queue <- ev:
		metrics.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
	default:
		e.drop(ev, "event queue full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to expire.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) drop(ev Event, reason string) {
	metrics.EventsDropped.Inc()
	e.logger.WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"owner_id":   ev.OwnerID,
	}).Warn(reason)
}

func (e *Emitter) deliver(ev Event) {
	for _, sink := range e.sinks {
		e.deliverTo(sink, ev)
	}
}

func (e *Emitter) deliverTo(sink Sink, ev Event) {
	fields := logrus.Fields{
		"sink":       sink.Name(),
		"event_id":   ev.ID,
		"event_type": ev.Type,
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.EventSinkErrors.WithLabelValues(sink.Name()).Inc()
			e.logger.WithFields(fields).WithField("panic", r).Error("event sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := sink.Deliver(ctx, ev); err != nil {
		metrics.EventSinkErrors.WithLabelValues(sink.Name()).Inc()
		e.logger.WithFields(fields).WithError(err).Error("deliver event")
	}
}
