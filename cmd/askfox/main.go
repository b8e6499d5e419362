package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AskFox/app/controllers"
	"github.com/ManuelReschke/AskFox/app/repository"
	apiv1 "github.com/ManuelReschke/AskFox/internal/api/v1"
	"github.com/ManuelReschke/AskFox/internal/pkg/auth"
	"github.com/ManuelReschke/AskFox/internal/pkg/billing"
	"github.com/ManuelReschke/AskFox/internal/pkg/cache"
	"github.com/ManuelReschke/AskFox/internal/pkg/config"
	"github.com/ManuelReschke/AskFox/internal/pkg/database"
	"github.com/ManuelReschke/AskFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/AskFox/internal/pkg/env"
	"github.com/ManuelReschke/AskFox/internal/pkg/metering"
	"github.com/ManuelReschke/AskFox/internal/pkg/middleware"
	"github.com/ManuelReschke/AskFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/AskFox/internal/pkg/router"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
)

func main() {
	app, cfg := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		_ = cache.Close()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *config.Config) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	database.SetupDatabase()
	db := database.GetDB()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/askfox to project root
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}
	specPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apiv1.LoadSpec(specPath); err != nil {
		log.Printf("Warning: %v", err)
	}

	// SERVICES
	store := subscription.NewStore(db)
	var rdb = cache.GetClient()
	if !cache.Available() {
		rdb = nil
	}
	ents := entitlements.NewService(store, rdb, cfg.Cache.EntitlementTTL)
	meter := metering.NewService(store, metering.WithNotifier(ents))
	billingSvc := billing.NewService(billing.NewRepository(db), store, billing.WithNotifier(ents))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := billingSvc.SeedPlanMappings(ctx, "stripe", cfg.Stripe.PriceIDs); err != nil {
		log.Fatalf("Seeding Stripe plan mappings failed: %v", err)
	}
	if err := billingSvc.SeedPlanMappings(ctx, "paypal", cfg.PayPal.PlanIDs); err != nil {
		log.Fatalf("Seeding PayPal plan mappings failed: %v", err)
	}
	if !cfg.StripeEnabled() {
		log.Printf("Warning: STRIPE_WEBHOOK_SECRET not set, Stripe webhooks will be rejected")
	}
	if !cfg.PayPalEnabled() {
		log.Printf("Warning: PayPal credentials not set, PayPal webhooks will be rejected")
	}

	var verifier middleware.TokenVerifier
	if cfg.Auth.Disabled {
		log.Printf("Warning: AUTH_DISABLED, every API request runs as %s", middleware.LocalUserID)
	} else {
		v, err := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
		if err != nil {
			log.Fatalf("Auth setup failed: %v", err)
		}
		verifier = v
	}

	repository.InitializeFactory(db)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "AskFox",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), middleware.RequestID, logger.New(logger.Config{
		Format: "${time} ${locals:request_id} ${status} - ${latency} ${method} ${path}\n",
	}))

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	monitorUsers := map[string]string{}
	if pw := env.GetEnv("MONITOR_PASSWORD", ""); pw != "" {
		monitorUsers[env.GetEnv("MONITOR_USER", "admin")] = pw
	}
	router.InstallRouter(app, router.Dependencies{
		DB: db,
		Controllers: &controllers.Controllers{
			Billing: controllers.NewBillingController(
				billingSvc,
				billing.NewStripeVerifier(cfg.Stripe.WebhookSecret),
				billing.NewPayPalVerifier(cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, cfg.PayPal.WebhookID, cfg.PayPal.APIBase),
			),
			Usage:       controllers.NewUsageController(meter),
			Entitlement: controllers.NewEntitlementController(ents),
			Account:     controllers.NewAccountController(repository.GetGlobalRepositories().User, ents),
		},
		Verifier:     verifier,
		Users:        repository.GetGlobalRepositories().User,
		RateLimit:    ratelimit.ConfigFromEnv(),
		MonitorUsers: monitorUsers,
	})

	return app, cfg
}
