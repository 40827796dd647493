// Package httputil provides the shared response envelope, error-kind
// mapping, and request logging middleware used by every REST handler
// (spec.md §1 "REST periphery", SPEC_FULL.md's ambient stack).
package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorBody holds structured error details. Code is the apperr.Kind string
// form, giving every client a stable machine-readable discriminator without
// depending on HTTP status alone.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps failed API responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with an explicit status, apperr.Kind, and message.
func Fail(c fiber.Ctx, status int, kind apperr.Kind, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{Code: kind.String(), Message: message},
	})
}

// FailErr maps err's apperr.Kind to an HTTP status and sends it, hiding the
// underlying message for kinds whose cause should not reach the client.
func FailErr(c fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "an internal error occurred"
	}
	return Fail(c, status, kind, message)
}

// StatusFor maps an apperr.Kind to its canonical HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return fiber.StatusNotFound
	case apperr.Forbidden:
		return fiber.StatusForbidden
	case apperr.Unauthorized:
		return fiber.StatusUnauthorized
	case apperr.AlreadyJoined, apperr.AlreadyWaiting, apperr.ConstraintViolation:
		return fiber.StatusConflict
	case apperr.MissingField:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
