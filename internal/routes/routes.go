package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/auth"
	"github.com/congo-pay/congo_save/internal/config"
	"github.com/congo-pay/congo_save/internal/funding"
	"github.com/congo-pay/congo_save/internal/identity"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/middleware"
	"github.com/congo-pay/congo_save/internal/savings"
	"github.com/congo-pay/congo_save/internal/transfer"
	"github.com/congo-pay/congo_save/internal/wallet"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *logrus.Logger

	Ledger    ledger.Ledger
	Identity  *identity.Service
	Auth      *auth.Service
	Savings   *savings.Service
	Wallets   *wallet.Service
	Transfers *transfer.Service
	Funding   *funding.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
		Output:     d.Logger.Writer(),
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, identity.NewHandler(d.Identity, d.Ledger, d.Logger), auth.NewHandler(d.Auth),
		middleware.LoginRateLimit(d.Cache, loginAttemptsPerMinute))
	RegisterFundingRoutes(api, funding.NewHandler(d.Funding, d.Cfg.WebhookSecret))

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(d.Auth))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, wallet.NewHandler(d.Wallets))
	RegisterTransferRoutes(protected, transfer.NewHandler(d.Transfers, d.Identity))
	RegisterSavingsRoutes(protected, savings.NewHandler(d.Savings))

	return nil
}
