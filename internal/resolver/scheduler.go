package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/metrics"
)

// Job is one scheduled background task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job never overlaps itself within
// the process, and when a lease is configured, across processes.
type Scheduler struct {
	cron    *cron.Cron
	lease   *Lease
	logger  logrus.FieldLogger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler. lease may be nil. timeout bounds a
// single run.
func NewScheduler(lease *Lease, logger *logrus.Logger, timeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		lease:   lease,
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job.
func (s *Scheduler) Add(job Job) error {
	_, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) })
	return err
}

// Start begins dispatching jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(job Job) {
	log := s.logger.WithField("job", job.Name)
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if s.lease != nil {
		release, err := s.lease.Acquire(ctx, job.Name)
		if errors.Is(err, ErrLeaseHeld) {
			log.Debug("job running elsewhere")
			return
		}
		if err != nil {
			log.WithError(err).Warn("lease unavailable, running without it")
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					log.WithError(err).Warn("release lease")
				}
			}()
		}
	}

	start := time.Now()
	err := job.Run(ctx)
	metrics.ResolverRunDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Error("job failed")
	}
}
