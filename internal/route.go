package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/auth"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/metrics"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"

	ctlDevice "github.com/gdbrns/whatsapp-webhook-relay/internal/device"
	ctlIndex "github.com/gdbrns/whatsapp-webhook-relay/internal/index"
	ctlMessage "github.com/gdbrns/whatsapp-webhook-relay/internal/message"
)

func Routes(app *fiber.App, manager *pkgWhatsApp.Manager, authConfig auth.Config) {
	// Route for Index
	// ---------------------------------------------
	app.Get("/", ctlIndex.Index)
	app.Get("/health", ctlIndex.Health(manager))

	// Route for Metrics
	// ---------------------------------------------
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// ============================================================
	// RELAY ROUTES (optional Bearer JWT)
	// ============================================================
	ctlMessages := ctlMessage.NewHandler(manager)
	app.Post("/send-message", auth.BearerAuth(authConfig.JWTSecretKey), ctlMessages.SendMessage)

	// ============================================================
	// SESSION ROUTES (X-Admin-Secret authentication)
	// ============================================================
	ctlSession := ctlDevice.NewHandler(manager, manager.Versions())
	session := app.Group("/session", auth.AdminAuth(authConfig.AdminSecretKey))
	session.Get("/status", ctlSession.Status)
	session.Get("/qr", ctlSession.QR)
	session.Post("/version/refresh", ctlSession.RefreshVersion)
}
