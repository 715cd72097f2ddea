package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/router"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

// Index
// @Summary     Show The Status of The Server
// @Description Get The Server Status
// @Tags        Root
// @Produce     json
// @Success     200
// @Router      / [get]
func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "WhatsApp webhook relay is running")
}

type StatusReporter interface {
	Status() pkgWhatsApp.Status
}

// Health
// @Summary     Show Session Health
// @Description 200 while the WhatsApp session is connected, 503 otherwise
// @Tags        Root
// @Produce     json
// @Success     200
// @Failure     503
// @Router      /health [get]
func Health(session StatusReporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := session.Status()
		data := map[string]interface{}{
			"state":     status.State,
			"connected": status.Connected,
		}
		if !status.Connected {
			return router.ResponseServiceUnavailableWithData(c, "WhatsApp session is not connected", data)
		}
		return router.ResponseSuccessWithData(c, "ok", data)
	}
}
