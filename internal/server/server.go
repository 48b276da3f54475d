// Package server exposes the trade execution endpoint and the workflow
// session API over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/logging"
	"trade-settlement/internal/notify"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/session"
	"trade-settlement/internal/workflow"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Quoter   quote.Quoter
	Executor workflow.RequestExecutor
	Verifier *auth.Verifier
	Sessions session.Store
	Workflow workflow.Options
	Notifier notify.Notifier
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// Options tune the HTTP listener.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       int
	AllowOrigins    string
	// RateLimit is requests per RateWindow per client IP; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Server wraps the fiber application.
type Server struct {
	app    *fiber.App
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// New wires routes and middleware.
func New(deps Deps, opts Options, logger zerolog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "server").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "tradesettle",
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		BodyLimit:             opts.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, err, nil)
		},
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(logging.RequestLogger(logger))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if opts.RateLimit > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: opts.RateWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{
					Error: "Too many requests",
					Code:  "rate_limited",
				})
			},
		}))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if s.deps.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api")
	api.Get("/quotes", s.getQuote)

	api.Post("/trades", s.requireBearer, s.postTrade)
	api.Post("/sessions", s.requireBearer, s.createSession)
	api.Get("/sessions/:id", s.requireBearer, s.getSession)
	api.Post("/sessions/:id/:action", s.requireBearer, s.sessionAction)
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- s.app.Listen(s.opts.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	if err := s.app.ShutdownWithTimeout(s.opts.ShutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
