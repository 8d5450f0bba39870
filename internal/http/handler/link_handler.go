package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkpulse/internal/app/service"
	"github.com/sifan077/linkpulse/internal/http/middleware"
	httpUtil "github.com/sifan077/linkpulse/internal/http/util"
	"go.uber.org/zap"
)

// LinkDeps groups dependencies required by the link management API.
type LinkDeps struct {
	Logger  *zap.Logger
	Service *service.Service
	Tokens  *httpUtil.TokenSigner
}

// LinkHandler implements the link management and dashboard endpoints.
type LinkHandler struct {
	logger *zap.Logger
	svc    *service.Service
	tokens *httpUtil.TokenSigner
}

func NewLinkHandler(deps LinkDeps) *LinkHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		logger: logger,
		svc:    deps.Service,
		tokens: deps.Tokens,
	}
}

// Register wires link routes onto the provided router. Every route needs a
// session.
func (h *LinkHandler) Register(router fiber.Router) {
	session := middleware.RequireSession(h.tokens)
	api := router.Group("/api")
	{
		links := api.Group("/links", session)
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:id", h.GetLink)
			links.Delete("/:id", h.DeleteLink)
		}
		api.Get("/dashboard/stats", session, h.DashboardStats)
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	OriginalURL string     `json:"originalUrl" validate:"required,url"`
	CustomAlias string     `json:"customAlias" validate:"omitempty,max=32"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// CreateLink handles POST /api/links
func (h *LinkHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	link, err := h.svc.CreateLink(requestContext(c), middleware.UserID(c), service.CreateLinkInput{
		OriginalURL: req.OriginalURL,
		CustomAlias: req.CustomAlias,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return writeError(c, h.logger, err, "failed to create link")
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

// ListLinks handles GET /api/links
func (h *LinkHandler) ListLinks(c *fiber.Ctx) error {
	links, err := h.svc.ListLinks(requestContext(c), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to list links")
	}

	return c.JSON(fiber.Map{
		"links": links,
		"count": len(links),
	})
}

// GetLink handles GET /api/links/:id
func (h *LinkHandler) GetLink(c *fiber.Ctx) error {
	details, err := h.svc.GetLinkDetails(requestContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load link")
	}
	return c.JSON(details)
}

// DeleteLink handles DELETE /api/links/:id
func (h *LinkHandler) DeleteLink(c *fiber.Ctx) error {
	if err := h.svc.DeleteLink(requestContext(c), middleware.UserID(c), c.Params("id")); err != nil {
		return writeError(c, h.logger, err, "failed to delete link")
	}
	return c.JSON(fiber.Map{"success": true})
}

// DashboardStats handles GET /api/dashboard/stats
func (h *LinkHandler) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.svc.DashboardStats(requestContext(c), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load dashboard stats")
	}
	return c.JSON(stats)
}
