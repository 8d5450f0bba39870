package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/service"
	"github.com/sifan077/linkpulse/internal/http/middleware"
	httpUtil "github.com/sifan077/linkpulse/internal/http/util"
	"go.uber.org/zap"
)

// AuthDeps groups dependencies required by auth handlers.
type AuthDeps struct {
	Logger       *zap.Logger
	Service      *service.Service
	Tokens       *httpUtil.TokenSigner
	SecureCookie bool
}

// AuthHandler implements registration, login and session endpoints.
type AuthHandler struct {
	logger       *zap.Logger
	svc          *service.Service
	tokens       *httpUtil.TokenSigner
	secureCookie bool
}

func NewAuthHandler(deps AuthDeps) *AuthHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:       logger,
		svc:          deps.Service,
		tokens:       deps.Tokens,
		secureCookie: deps.SecureCookie,
	}
}

// Register wires auth routes onto the provided router.
func (h *AuthHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	api.Post("/register", h.SignUp)
	api.Post("/login", h.Login)
	api.Post("/logout", h.Logout)
	api.Get("/user", middleware.RequireSession(h.tokens), h.CurrentUser)
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignUp handles POST /api/register
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req RegisterRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	user, err := h.svc.Register(requestContext(c), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeError(c, h.logger, err, "failed to register")
	}

	return h.startSession(c, fiber.StatusCreated, user)
}

// Login handles POST /api/login. Username may also be an email address.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	user, err := h.svc.Authenticate(requestContext(c), req.Username, req.Password)
	if err != nil {
		return writeError(c, h.logger, err, "failed to log in")
	}

	return h.startSession(c, fiber.StatusOK, user)
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"success": true})
}

// CurrentUser handles GET /api/user
func (h *AuthHandler) CurrentUser(c *fiber.Ctx) error {
	user, err := h.svc.GetUser(requestContext(c), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load user")
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *AuthHandler) startSession(c *fiber.Ctx, status int, user *model.User) error {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to start session",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.tokens.TTL()),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(status).JSON(sessionResponse{User: user, Token: token})
}
