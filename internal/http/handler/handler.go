package handler

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"github.com/sifan077/linkpulse/internal/app/service"
	"go.uber.org/zap"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind parses the JSON body into req and runs its validate tags. It writes
// the 400 response itself and reports whether the handler may continue.
func bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": fieldErrors(err),
		})
	}
	return true, nil
}

func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// writeError maps engine errors onto HTTP statuses.
func writeError(c *fiber.Ctx, logger *zap.Logger, err error, msg string) error {
	status := fiber.StatusInternalServerError
	body := msg

	switch {
	case errors.Is(err, service.ErrValidation):
		status, body = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status, body = fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, repository.ErrConflict):
		status, body = fiber.StatusConflict, conflictMessage(err)
	case errors.Is(err, service.ErrExpired):
		status, body = fiber.StatusGone, "link expired"
	case errors.Is(err, repository.ErrNotFound):
		status, body = fiber.StatusNotFound, notFoundMessage(err)
	default:
		logger.Error(msg, zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{"error": body})
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return "username already exists"
	case errors.Is(err, repository.ErrAliasTaken):
		return "custom alias already in use"
	}
	return "conflict"
}

func notFoundMessage(err error) string {
	if errors.Is(err, repository.ErrUserNotFound) {
		return "user not found"
	}
	return "link not found"
}
