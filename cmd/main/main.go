package main

// @title WhatsApp Webhook Relay
// @version 1.0.0
// @description Relays inbound WhatsApp messages to a webhook and sends text messages back through one WhatsApp session

// @host localhost:3000
// @BasePath /

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret key for the session endpoints

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token for /send-message, when RELAY_JWT_SECRET is set

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/whatsapp-webhook-relay/internal"
	"github.com/gdbrns/whatsapp-webhook-relay/internal/webhook"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/auth"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/router"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

func main() {
	if err := buildRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	var err error

	log.SetLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))

	serverConfig := router.LoadConfig()
	authConfig := auth.LoadConfig()
	webhookConfig := webhook.LoadConfig()
	whatsAppConfig := pkgWhatsApp.LoadConfig()

	if err = validation.ValidateURL(webhookConfig.URL); err != nil {
		log.Print(nil).WithField("url", webhookConfig.URL).Error("Invalid WEBHOOK_URL: " + err.Error())
		return err
	}

	// Initialize WhatsApp Auth State
	authStore, err := pkgWhatsApp.OpenAuthStore(ctx, whatsAppConfig.Auth, whatsAppConfig.LogLevel)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to initialize WhatsApp auth state")
		return err
	}

	// Initialize Webhook Engine and Session Manager
	engine := webhook.NewEngine(webhookConfig)
	dialer := &pkgWhatsApp.WhatsmeowDialer{
		ClientName: whatsAppConfig.ClientName,
		LogLevel:   whatsAppConfig.LogLevel,
		ProxyURL:   whatsAppConfig.ProxyURL,
	}
	manager := pkgWhatsApp.NewManager(whatsAppConfig, authStore, dialer, engine)

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:          router.HttpErrorHandler,
		BodyLimit:             serverConfig.BodyLimit,
		DisableStartupMessage: true,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())
	app.Use(router.HttpMetrics())

	// Router Compression
	if serverConfig.GZipLevel > 0 {
		app.Use(compress.New(compress.Config{
			Level: compress.Level(serverConfig.GZipLevel),
		}))
	}

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: serverConfig.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Secret",
		AllowMethods: "GET,POST",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, manager, authConfig)

	// Running Startup Tasks
	internal.Startup(manager)

	// Running Routines Tasks
	internal.Routines(c, manager, internal.LoadRoutineConfig())

	// Start Server
	serverErr := make(chan error, 1)
	go func() {
		log.Print(nil).Info("HTTP server listening on " + serverConfig.Addr())
		serverErr <- app.Listen(serverConfig.Addr())
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigShutdown)

	select {
	case <-sigShutdown:
	case <-ctx.Done():
	case err = <-serverErr:
		log.Print(nil).WithError(err).Error("HTTP server stopped")
	}

	// Wait 5 Seconds Before Graceful Shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	if errShutdown := app.ShutdownWithContext(ctxShutdown); errShutdown != nil {
		log.Print(nil).WithError(errShutdown).Error("Failed to shutdown HTTP server")
	}

	// Try To Shutdown Cron
	<-c.Stop().Done()

	// Try To Shutdown WhatsApp Session, then flush queued webhooks
	if errClose := manager.Close(); errClose != nil {
		log.Print(nil).WithError(errClose).Error("Failed to close WhatsApp session")
	}
	if errEngine := engine.Shutdown(ctxShutdown); errEngine != nil {
		log.Print(nil).WithError(errEngine).Warn("Webhook queue not fully drained")
	}

	log.Print(nil).Info("Relay stopped")
	return err
}
