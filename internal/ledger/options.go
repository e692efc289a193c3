package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures a ledger backend.
type Option func(*options)

type options struct {
	logger        logrus.FieldLogger
	maxRetries    int
	backoff       time.Duration
	decimalPlaces int32
	now           func() time.Time
}

func defaultOptions() options {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return options{
		logger:        logger,
		maxRetries:    3,
		backoff:       25 * time.Millisecond,
		decimalPlaces: 2,
		now:           time.Now,
	}
}

// WithLogger sets the logger used for retries and observer failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxRetries bounds how often a conflicting unit of work is retried.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithDecimalPlaces sets the precision of wallets created without one.
func WithDecimalPlaces(places int32) Option {
	return func(o *options) { o.decimalPlaces = places }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// observers fans committed postings out to registered observers.
type observers struct {
	mu     sync.RWMutex
	list   []Observer
	logger logrus.FieldLogger
}

// Observe registers observers notified after each committed posting.
func (o *observers) Observe(obs ...Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs...)
}

func (o *observers) notify(ctx context.Context, wallet Wallet, tx Transaction) {
	o.mu.RLock()
	list := o.list
	o.mu.RUnlock()

	for _, obs := range list {
		if err := obs.TransactionPosted(ctx, wallet, tx); err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{
				"wallet_id":      wallet.ID,
				"transaction_id": tx.ID,
				"type":           tx.Type,
			}).Error("ledger observer failed")
		}
	}
}
