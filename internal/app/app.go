package app

import (
	"time"

	"fleetfi-backend/internal/assets"
	"fleetfi-backend/internal/auth"
	"fleetfi-backend/internal/config"
	"fleetfi-backend/internal/constants"
	"fleetfi-backend/internal/custody"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/health"
	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/ownership"
	"fleetfi-backend/internal/payouts"
	"fleetfi-backend/internal/revenue"
	"fleetfi-backend/internal/wallet"
	"fleetfi-backend/internal/webhooks"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps exposes the app's long-lived resources for the entrypoint to manage.
type Deps struct {
	DB      *gorm.DB
	Rdb     *redis.Client
	Custody custody.Provider
	Revenue *revenue.Service
	Payouts *payouts.Service
}

// CreateApp builds the Fiber app with all global middleware and route
// registration.
func CreateApp(cfg *config.Config) (*fiber.App, *Deps, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
	}

	// Session (Redis); the client is shared with the health marker and the
	// webhook replay guard.
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, err
	}

	provider := buildProvider(cfg)

	revenueService := &revenue.Service{DB: db, Split: revenue.SplitConfig{
		Version:     cfg.SplitVersion,
		Investor:    cfg.SplitInvestor,
		Rider:       cfg.SplitRider,
		Management:  cfg.SplitManagement,
		Maintenance: cfg.SplitMaintenance,
	}}
	payoutService := &payouts.Service{DB: db, Custody: provider}

	// Custody webhook is mounted before the session middleware so the raw
	// body reaches signature verification untouched.
	custodyWebhook := &webhooks.WebhookHandler{
		DB:         db,
		Rdb:        rdb,
		Secret:     cfg.CustodyWebhookSecret,
		SkipVerify: cfg.CustodySkipVerify,
		Reconciler: &webhooks.Reconciler{},
	}
	app.Post("/api/v1/custody/webhook", custodyWebhook.HandleWebhook)

	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.ResponseFormatter())
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	// --- Routes (no auth) ---
	var dbPinger health.DBPinger
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			dbPinger = sqlDB
		}
	}
	healthHandlers := &health.Handlers{
		Rdb:            rdb,
		DB:             dbPinger,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health", healthHandlers.Live)
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/reset", healthHandlers.Reset)

	var userFinder auth.UserFinder
	if db != nil {
		userFinder = &auth.GormUserFinder{DB: db}
	}
	authHandlers := &auth.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// --- Protected modules (auth required) ---
	if db != nil {
		assetService := &assets.Service{DB: db}
		assetHandlers := &assets.Handlers{Service: assetService}
		assetGroup := app.Group("/api/v1/assets", middleware.RequireAuth())
		assetGroup.Post("/", middleware.AuthorizePermission(constants.RegisterAsset), assetHandlers.Register)
		assetGroup.Get("/", middleware.AuthorizePermission(constants.ViewData), assetHandlers.List)
		assetGroup.Get("/:asset_id", middleware.AuthorizePermission(constants.ViewData), assetHandlers.Get)
		assetGroup.Put("/:asset_id/driver", middleware.AuthorizePermission(constants.RegisterAsset), assetHandlers.AssignDriver)

		ownershipService := &ownership.Service{DB: db, Custody: provider}
		ownershipHandlers := &ownership.Handlers{Service: ownershipService}
		tokenGroup := app.Group("/api/v1/tokens", middleware.RequireAuth())
		tokenGroup.Post("/mint", middleware.AuthorizePermission(constants.MintTokens), ownershipHandlers.Mint)
		tokenGroup.Post("/transfer", middleware.AuthorizePermission(constants.TransferTokens), ownershipHandlers.Transfer)
		tokenGroup.Post("/revoke", middleware.AuthorizePermission(constants.RevokeTokens), ownershipHandlers.Revoke)
		tokenGroup.Get("/asset/:asset_id", middleware.AuthorizePermission(constants.ViewData), ownershipHandlers.ListByAsset)

		revenueHandlers := &revenue.Handlers{Service: revenueService}
		revenueGroup := app.Group("/api/v1/revenue", middleware.RequireAuth())
		revenueGroup.Post("/record", middleware.AuthorizePermission(constants.RecordRevenue), revenueHandlers.Record)
		revenueGroup.Get("/asset/:asset_id", middleware.AuthorizePermission(constants.ViewData), revenueHandlers.ListByAsset)

		payoutHandlers := &payouts.Handlers{Service: payoutService}
		payoutGroup := app.Group("/api/v1/payouts", middleware.RequireAuth())
		payoutGroup.Post("/distribute", middleware.AuthorizePermission(constants.DistributePayouts), payoutHandlers.Distribute)
		payoutGroup.Get("/batch/:batch_id", middleware.AuthorizePermission(constants.ViewData), payoutHandlers.GetBatch)

		walletService := &wallet.Service{DB: db}
		walletHandlers := &wallet.Handlers{Service: walletService}
		walletGroup := app.Group("/api/v1/wallets", middleware.RequireAuth())
		walletGroup.Post("/credit", middleware.AuthorizePermission(constants.CreditWallet), walletHandlers.Credit)
		walletGroup.Post("/debit", middleware.AuthorizePermission(constants.DebitWallet), walletHandlers.Debit)
		walletGroup.Post("/transfer", middleware.AuthorizePermission(constants.TransferFunds), walletHandlers.Transfer)
		walletGroup.Get("/:wallet_id", middleware.AuthorizePermission(constants.ViewData), walletHandlers.GetWallet)
		walletGroup.Get("/:wallet_id/transactions", middleware.AuthorizePermission(constants.ViewData), walletHandlers.ListTransactions)
	}

	deps := &Deps{
		DB:      db,
		Rdb:     rdb,
		Custody: provider,
		Revenue: revenueService,
		Payouts: payoutService,
	}
	return app, deps, nil
}

func buildProvider(cfg *config.Config) custody.Provider {
	if cfg.CustodyMode == config.CustodyModeLive {
		return custody.NewLiveProvider(cfg.CustodyAPIURL, cfg.CustodyAPIKey, time.Duration(cfg.CustodyTimeoutSec)*time.Second)
	}
	return &custody.SandboxProvider{}
}
