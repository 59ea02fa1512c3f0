package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"redisrag/store"
	"redisrag/types"
)

// NewErrorHandler builds the fiber error handler. Known error types keep
// their status code; anything else is logged and becomes a plain 500.
func NewErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var apiErr Error
		if errors.As(err, &apiErr) {
			return c.Status(apiErr.Code).JSON(apiErr)
		}

		var valErr types.ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}

		if errors.Is(err, store.ErrNotFound) {
			notFound := NewError(fiber.StatusNotFound, err.Error())
			return c.Status(notFound.Code).JSON(notFound)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			apiErr = NewError(fiberErr.Code, fiberErr.Message)
			return c.Status(apiErr.Code).JSON(apiErr)
		}

		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		apiErr = NewError(fiber.StatusInternalServerError, "internal server error")
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}

func ErrUnsupportedFile(ext string) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("unsupported file type %q, want .pdf, .md or .txt", ext),
	}
}
