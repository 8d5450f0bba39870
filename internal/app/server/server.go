package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/linkpulse/internal/app/service"
	inthttp "github.com/sifan077/linkpulse/internal/http/handler"
	"github.com/sifan077/linkpulse/internal/http/middleware"
	httpUtil "github.com/sifan077/linkpulse/internal/http/util"
	"go.uber.org/zap"
)

const sessionTTL = 7 * 24 * time.Hour

// Dependencies bundles what the HTTP server needs. Redis is optional; without
// it requests are not rate limited. X-Forwarded-For is honored only from
// TrustedProxies.
type Dependencies struct {
	Logger         *zap.Logger
	Service        *service.Service
	Redis          *redis.Client
	SessionSecret  []byte
	AllowedOrigins []string
	TrustedProxies []string
	SecureCookies  bool
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(httpUtil.TrustProxies(fiber.Config{
		AppName:               "linkpulse",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	}, deps.TrustedProxies))

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(
		middleware.RequestID(),
		middleware.Recovery(s.deps.Logger),
		middleware.Logger(s.deps.Logger.Named("http")),
		middleware.CORS(s.deps.AllowedOrigins...),
	)
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	tokens := httpUtil.NewTokenSigner(s.deps.SessionSecret, sessionTTL)

	inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:  s.deps.Logger,
		Service: s.deps.Service,
	}).Register(s.app)

	inthttp.NewAuthHandler(inthttp.AuthDeps{
		Logger:       s.deps.Logger,
		Service:      s.deps.Service,
		Tokens:       tokens,
		SecureCookie: s.deps.SecureCookies,
	}).Register(s.app)

	inthttp.NewLinkHandler(inthttp.LinkDeps{
		Logger:  s.deps.Logger,
		Service: s.deps.Service,
		Tokens:  tokens,
	}).Register(s.app)
}
