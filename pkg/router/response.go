package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
)

// Response is the JSON body shared by every endpoint. Rejected requests carry
// only Error; failed operations also carry Success=false.
type Response struct {
	Success *bool       `json:"success,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func boolPtr(v bool) *bool {
	return &v
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, message))
	}
}

func messageOrStatus(code int, message string) string {
	if strings.TrimSpace(message) == "" {
		return http.StatusText(code)
	}
	return message
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return ResponseSuccessWithData(c, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	response := Response{
		Success: boolPtr(true),
		Message: messageOrStatus(http.StatusOK, message),
		Data:    data,
	}

	logSuccess(c, http.StatusOK, response.Message)
	return c.Status(http.StatusOK).JSON(response)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

// responseRejected answers with {"error": ...} only.
func responseRejected(c *fiber.Ctx, code int, message string) error {
	response := Response{
		Error: messageOrStatus(code, message),
	}

	logError(c, code, response.Error)
	return c.Status(code).JSON(response)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return responseRejected(c, http.StatusBadRequest, message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return responseRejected(c, http.StatusUnauthorized, message)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return responseRejected(c, http.StatusNotFound, message)
}

func ResponseTooManyRequests(c *fiber.Ctx, message string) error {
	return responseRejected(c, http.StatusTooManyRequests, message)
}

func ResponseServiceUnavailable(c *fiber.Ctx, message string) error {
	return responseRejected(c, http.StatusServiceUnavailable, message)
}

// ResponseServiceUnavailableWithData is used by health probes that still
// report their state while failing.
func ResponseServiceUnavailableWithData(c *fiber.Ctx, message string, data interface{}) error {
	response := Response{
		Success: boolPtr(false),
		Error:   messageOrStatus(http.StatusServiceUnavailable, message),
		Data:    data,
	}

	logError(c, http.StatusServiceUnavailable, response.Error)
	return c.Status(http.StatusServiceUnavailable).JSON(response)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	response := Response{
		Success: boolPtr(false),
		Error:   messageOrStatus(http.StatusInternalServerError, message),
	}

	logError(c, http.StatusInternalServerError, response.Error)
	return c.Status(http.StatusInternalServerError).JSON(response)
}
