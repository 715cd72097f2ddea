package device

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/internal/types"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/router"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

const qrImageSize = 256

// Session is the read side of the WhatsApp session used by the admin
// endpoints.
type Session interface {
	Status() pkgWhatsApp.Status
	LatestQR() (string, time.Time, bool)
}

type VersionRefresher interface {
	Refresh(ctx context.Context, force bool) (pkgWhatsApp.VersionStatus, bool, error)
}

type Handler struct {
	session  Session
	versions VersionRefresher
}

func NewHandler(session Session, versions VersionRefresher) *Handler {
	return &Handler{session: session, versions: versions}
}

// Status
// @Summary     Show Session Status
// @Tags        Session
// @Produce     json
// @Success     200
// @Router      /session/status [get]
func (h *Handler) Status(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get session status", h.session.Status())
}

// QR returns the pending pairing code as a PNG data URL, or an HTML page with
// output=html.
// @Summary     Show Pending QR Code
// @Tags        Session
// @Produce     json
// @Produce     html
// @Param       output query string false "json or html"
// @Success     200
// @Failure     404
// @Router      /session/qr [get]
func (h *Handler) QR(c *fiber.Ctx) error {
	var reqQR typWhatsApp.RequestQR
	reqQR.Output = strings.TrimSpace(c.Query("output"))
	if len(reqQR.Output) == 0 {
		reqQR.Output = "json"
	}

	code, generatedAt, ok := h.session.LatestQR()
	if !ok {
		return router.ResponseNotFound(c, "No pairing code pending")
	}

	qrCodeImage, err := pkgWhatsApp.QRDataURL(code, qrImageSize)
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to encode QR code")
		return router.ResponseInternalError(c, "Failed to encode QR code")
	}

	var resQR typWhatsApp.ResponseQR
	resQR.QRCode = qrCodeImage
	resQR.GeneratedAt = generatedAt

	if reqQR.Output == "html" {
		htmlContent := `
		<html>
			<head>
				<title>WhatsApp Relay Pairing</title>
				<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
				<meta http-equiv="refresh" content="20" />
			</head>
			<body>
				<img src="` + resQR.QRCode + `" />
				<p>
					<b>QR Code Scan</b>
					<br/>
					Open WhatsApp > Linked devices and scan the code. The page refreshes every 20 seconds.
				</p>
			</body>
		</html>`

		c.Set("Content-Type", "text/html")
		return c.SendString(htmlContent)
	}

	return router.ResponseSuccessWithData(c, "Success get QR code", resQR)
}

// RefreshVersion
// @Summary     Refresh WhatsApp Web Version
// @Tags        Session
// @Produce     json
// @Param       force query bool false "skip the refresh throttle"
// @Success     200
// @Router      /session/version/refresh [post]
func (h *Handler) RefreshVersion(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	status, attempted, err := h.versions.Refresh(ctx, c.QueryBool("force", false))
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to refresh WhatsApp Web version")
		return router.ResponseInternalError(c, "Failed to refresh WhatsApp Web version")
	}

	message := "WhatsApp Web version refreshed"
	if !attempted {
		message = "WhatsApp Web version refreshed recently, skipped"
	}
	return router.ResponseSuccessWithData(c, message, status)
}
