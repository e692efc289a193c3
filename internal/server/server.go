package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/auth"
	"github.com/congo-pay/congo_save/internal/config"
	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/funding"
	"github.com/congo-pay/congo_save/internal/identity"
	"github.com/congo-pay/congo_save/internal/interest"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/resolver"
	"github.com/congo-pay/congo_save/internal/routes"
	"github.com/congo-pay/congo_save/internal/savings"
	"github.com/congo-pay/congo_save/internal/transfer"
	"github.com/congo-pay/congo_save/internal/wallet"
)

const (
	eventWorkers = 4
	jobTimeout   = 10 * time.Minute
	leaseTTL     = jobTimeout + time.Minute
)

// observableLedger is a ledger that accepts after-commit observers.
type observableLedger interface {
	ledger.Ledger
	Observe(obs ...ledger.Observer)
}

// Server wraps the Fiber application, the background jobs and shared
// dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	logger    *logrus.Logger
	emitter   *events.Emitter
	scheduler *resolver.Scheduler
}

// New builds the service graph and delegates route wiring to routes.Setup.
// db, cache and nc may be nil in development; in-memory backends replace
// Postgres and the Redis/NATS sinks are skipped.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, nc *nats.Conn, logger *logrus.Logger) (*Server, error) {
	sinks := []events.Sink{events.LogSink{Logger: logger.WithField("component", "events")}}
	if cache != nil {
		sinks = append(sinks, events.NewRedisSink(cache))
	}
	if nc != nil {
		sinks = append(sinks, events.NewNATSSink(nc))
	}
	emitter := events.NewEmitter(logger, cfg.EventBuffer, sinks...)

	opts := []ledger.Option{
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithMaxRetries(cfg.LedgerRetries),
		ledger.WithDecimalPlaces(cfg.DecimalPlaces),
	}
	var (
		l            observableLedger
		savingsRepo  savings.Repository
		interestRepo interest.Repository
		identityRepo identity.Repository
	)
	if db != nil {
		l = ledger.NewPostgresLedger(db, opts...)
		savingsRepo = savings.NewPostgresRepository(db)
		interestRepo = interest.NewPostgresRepository(db)
		identityRepo = identity.NewPostgresRepository(db)
	} else {
		mem := ledger.NewInMemory(opts...)
		l = mem
		savingsRepo = savings.NewMemoryRepository()
		interestRepo = interest.NewMemoryRepository(mem.Wallets)
		identityRepo = identity.NewMemoryRepository()
		logger.Warn("no database configured, using in-memory storage")
	}

	if err := savings.SeedPlans(ctx, savingsRepo, savings.DefaultPlans()); err != nil {
		return nil, err
	}

	savingsSvc := savings.NewService(savingsRepo, l, emitter, logger.WithField("component", "savings"))
	engine := interest.NewEngine(interestRepo, l, savingsSvc, logger.WithField("component", "interest"), cfg.InterestPageSize)
	l.Observe(engine, savings.NewObserver(savingsSvc, emitter))

	fees := transfer.FlatFee(cfg.TransferFeeFlat, cfg.TransferFeeBps, cfg.TransferFeeCap)
	if err := fees.Validate(); err != nil {
		return nil, fmt.Errorf("transfer fees: %w", err)
	}

	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.AccessTokenTTL, identitySvc)
	walletSvc := wallet.NewService(l, savingsSvc, savingsSvc, logger.WithField("component", "wallet"))
	transferSvc := transfer.NewService(l, savingsSvc, savingsSvc, fees, logger.WithField("component", "transfer"))
	fundingSvc, err := funding.NewService(walletSvc, logger.WithField("component", "funding"))
	if err != nil {
		return nil, err
	}

	scheduler, err := newScheduler(cfg, cache, logger, resolver.New(savingsRepo, l, emitter, logger.WithField("component", "resolver"), cfg.ResolverPageSize), engine)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	err = routes.Setup(app, routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Ledger:    l,
		Identity:  identitySvc,
		Auth:      authSvc,
		Savings:   savingsSvc,
		Wallets:   walletSvc,
		Transfers: transferSvc,
		Funding:   fundingSvc,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger, emitter: emitter, scheduler: scheduler}, nil
}

func newScheduler(cfg config.Config, cache *redis.Client, logger *logrus.Logger, res *resolver.Resolver, engine *interest.Engine) (*resolver.Scheduler, error) {
	var lease *resolver.Lease
	if cache != nil {
		lease = resolver.NewLease(cache, leaseTTL)
	}
	scheduler := resolver.NewScheduler(lease, logger, jobTimeout)

	jobs := []resolver.Job{
		{Name: "resolve_matured", Schedule: cfg.ResolverSchedule, Run: func(ctx context.Context) error {
			_, err := res.ResolveMatured(ctx)
			return err
		}},
		{Name: "resolve_challenges", Schedule: cfg.ResolverSchedule, Run: func(ctx context.Context) error {
			_, err := res.ResolveChallenges(ctx)
			return err
		}},
		{Name: "interest_sweep", Schedule: cfg.InterestSchedule, Run: func(ctx context.Context) error {
			_, err := engine.Sweep(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	return scheduler, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start launches event delivery and the scheduled jobs.
func (s *Server) Start() {
	s.emitter.Start(eventWorkers)
	s.scheduler.Start()
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, waits for running jobs and drains the
// event queue.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.app.ShutdownWithContext(ctx),
		s.scheduler.Stop(ctx),
		s.emitter.Close(ctx),
	)
}
