package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Committed ledger transactions by type",
		},
		[]string{"type"},
	)

	LedgerReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_replays_total",
			Help: "Postings answered from an existing reference",
		},
	)

	LedgerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_retries_total",
			Help: "Units of work retried after a serialization or lock conflict",
		},
		[]string{"operation"},
	)

	InterestAccruals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interest_accruals_total",
			Help: "Wallet accrual windows applied to the interest accumulator",
		},
	)

	InterestPayouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interest_payouts_total",
			Help: "Interest deposits credited to wallets",
		},
	)

	InterestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interest_failures_total",
			Help: "Wallets skipped during a sweep because accrual or payout failed",
		},
	)

	ResolverTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_transitions_total",
			Help: "Savings moved to a terminal state",
		},
		[]string{"kind"},
	)

	ResolverRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolver_run_duration_seconds",
			Help:    "Duration of scheduled background jobs",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"job"},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Events accepted by the emitter",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped because the emitter queue was full",
		},
	)

	EventSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_errors_total",
			Help: "Event deliveries that failed per sink",
		},
		[]string{"sink"},
	)
)
