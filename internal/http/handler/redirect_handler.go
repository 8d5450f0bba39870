package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"github.com/sifan077/linkpulse/internal/app/service"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger  *zap.Logger
	Service *service.Service
}

// RedirectHandler serves short links and the health check.
type RedirectHandler struct {
	logger *zap.Logger
	svc    *service.Service
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger,
		svc:    deps.Service,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/r/:code", h.Resolve)
}

// Health reports the process and the active store.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if err := h.svc.Ping(requestContext(c)); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status, code = "degraded", fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"service": "linkpulse",
		"status":  status,
		"backend": h.svc.Backend(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /r/:code. The visit is recorded in the background;
// the redirect never waits for it.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	link, err := h.svc.Resolve(requestContext(c), code)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "link expired"})
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "short link not found"})
	default:
		h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	// fiber reuses c after the handler returns; copy what the recorder needs.
	h.svc.RecordVisit(link, model.Visit{
		IP:        utils.CopyString(c.IP()),
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		Referrer:  utils.CopyString(c.Get(fiber.HeaderReferer)),
	})

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", link.OriginalURL))
	return c.Redirect(link.OriginalURL, fiber.StatusFound)
}
