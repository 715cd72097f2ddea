package message

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/internal/types"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/router"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

// Sender delivers a text message through the WhatsApp session.
type Sender interface {
	Send(ctx context.Context, destination string, text string) (string, error)
}

type Handler struct {
	sender Sender
}

func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// SendMessage
// @Summary     Send Text Message
// @Description Send a text message through the active WhatsApp session
// @Tags        Message
// @Accept      json
// @Produce     json
// @Param       body body types.RequestSendMessage true "destination chat and text"
// @Success     200 {object} router.Response "message sent"
// @Failure     400 {object} router.Response "missing to/message, undecodable body or malformed destination"
// @Failure     500 {object} router.Response "send failed"
// @Failure     503 {object} router.Response "no active WhatsApp session"
// @Router      /send-message [post]
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var reqSend typWhatsApp.RequestSendMessage
	if err := c.BodyParser(&reqSend); err != nil {
		log.MessageOp(c, "SendMessage", "").WithError(err).Warn("Failed to parse body request")
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	err := validation.RequireFields(
		validation.Field{Name: "to", Value: reqSend.To},
		validation.Field{Name: "message", Value: reqSend.Message},
	)
	if err != nil {
		log.MessageOp(c, "SendMessage", reqSend.To).Warn(err.Error())
		return router.ResponseBadRequest(c, err.Error())
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	msgID, err := h.sender.Send(ctx, reqSend.To, reqSend.Message)
	switch {
	case err == nil:
		log.MessageOp(c, "SendMessage", reqSend.To).WithField("message_id", msgID).Info("Message sent")
		return router.ResponseSuccessWithData(c, "Message sent successfully", typWhatsApp.ResponseSendMessage{MessageID: msgID})
	case errors.Is(err, pkgWhatsApp.ErrNotConnected):
		log.MessageOp(c, "SendMessage", reqSend.To).Warn("WhatsApp session is not connected")
		return router.ResponseServiceUnavailable(c, "WhatsApp session is not connected")
	case errors.Is(err, pkgWhatsApp.ErrInvalidDestination):
		log.MessageOp(c, "SendMessage", reqSend.To).Warn(err.Error())
		return router.ResponseBadRequest(c, err.Error())
	default:
		log.MessageOp(c, "SendMessage", reqSend.To).WithError(err).Error("Failed to send message")
		return router.ResponseInternalError(c, "Failed to send message")
	}
}
