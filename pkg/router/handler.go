package router

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// HttpErrorHandler turns errors escaping a handler into the shared JSON body.
func HttpErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code >= http.StatusInternalServerError {
		return ResponseInternalError(c, message)
	}
	return responseRejected(c, code, message)
}
