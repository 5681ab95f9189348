// Package server assembles the portal: API client, route guard, views,
// CSRF protection and the page routes on one fiber app.
package server

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/config"
	"github.com/goliatone/go-rwportal/middleware/csrf"
	"github.com/goliatone/go-rwportal/pages"
	"github.com/goliatone/go-rwportal/views"
	"github.com/prometheus/client_golang/prometheus"
)

// BodyLimit leaves room for a complaint photo plus the form fields.
const BodyLimit = 8 * 1024 * 1024

type Server struct {
	App      *fiber.App
	Guard    *rwportal.RouteGuard
	Client   *rwportal.Client
	Registry *prometheus.Registry

	cfg    *config.Config
	logger *slog.Logger
	views  fiber.Views
	csrf   bool
	now    func() time.Time
}

type Option func(*Server) *Server

// WithViews replaces the template engine.
func WithViews(engine fiber.Views) Option {
	return func(s *Server) *Server {
		if engine != nil {
			s.views = engine
		}
		return s
	}
}

// WithoutCSRF turns off token checks on form posts.
func WithoutCSRF() Option {
	return func(s *Server) *Server {
		s.csrf = false
		return s
	}
}

// WithClock replaces time.Now for form defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Server) *Server {
		if now != nil {
			s.now = now
		}
		return s
	}
}

// New wires the portal from cfg. The returned server is ready to Run or
// to answer requests through App.Test.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, goerrors.New("server requires a configuration", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode("MISSING_CONFIG")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, csrf: true, now: time.Now}
	for _, opt := range opts {
		s = opt(s)
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) build() error {
	cfg := s.cfg
	log := rwportal.NewSlogLogger(s.logger)

	registry, metrics := rwportal.NewRegistry()
	s.Registry = registry

	client, err := rwportal.NewClientFromConfig(cfg,
		rwportal.WithClientLogger(rwportal.NewSlogLogger(s.logger.With("component", "client"))),
		rwportal.WithClientMetrics(metrics),
		rwportal.WithDebug(cfg.Server.Debug),
	)
	if err != nil {
		return err
	}
	s.Client = client

	s.Guard = rwportal.NewRouteGuard(cfg, s.Client,
		rwportal.WithGuardLogger(rwportal.NewSlogLogger(s.logger.With("component", "guard"))),
		rwportal.WithGuardMetrics(metrics),
		rwportal.WithGuardProfileCache(rwportal.NewProfileCache(cfg.GetProfileCacheSize(), cfg.GetProfileCacheTTL())),
	)

	viewRegistry := rwportal.NewViewRegistry(cfg.Views.RegistrySize, cfg.GetViewRegistryTTL())

	if s.views == nil {
		funcs := rwportal.TemplateHelpers()
		maps.Copy(funcs, pages.Helpers())
		s.views = views.New(views.Options{
			Dir:    cfg.Views.Dir,
			Reload: cfg.Views.Reload,
			Debug:  cfg.Server.Debug,
			Funcs:  funcs,
		})
	}

	app := fiber.New(fiber.Config{
		AppName:               "rwportal",
		Views:                 s.views,
		PassLocalsToViews:     true,
		ErrorHandler:          s.Guard.ErrorHandler,
		BodyLimit:             BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Server.Debug}))
	app.Use(accessLog(s.logger.With("component", "http")))

	if s.csrf {
		app.Use(csrf.New(csrf.Config{
			SecureKey:  []byte(cfg.CSRF.Secret),
			Expiration: cfg.GetCSRFExpiration(),
			Skip:       isProbe,
		}))
	}

	controller := rwportal.NewAuthController(s.Guard,
		rwportal.WithControllerLogger(rwportal.NewSlogLogger(s.logger.With("component", "auth"))),
		rwportal.WithViewRegistry(viewRegistry),
		rwportal.WithGoogleURL(s.Client.URL(cfg.GetGoogleAuthEndpoint())),
		rwportal.WithControllerDebug(cfg.Server.Debug),
	)
	rwportal.RegisterAuthRoutes(app, controller)

	handlers := pages.New(s.Guard, s.Client,
		pages.WithLogger(log),
		pages.WithRegistry(viewRegistry),
		pages.WithMetrics(metrics, registry),
		pages.WithBoard(cfg.Board),
		pages.WithPaths(cfg.API.Paths),
		pages.WithClock(s.now),
	)
	pages.Register(app, handlers)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	s.App = app
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// up to the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.cfg.Server.Address, "api", s.cfg.GetAPIBaseURL())
		errc <- s.App.Listen(s.cfg.Server.Address)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.cfg.GetShutdownTimeout())
	if err := s.App.ShutdownWithTimeout(s.cfg.GetShutdownTimeout()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "shutdown failed")
	}
	return nil
}

func isProbe(c *fiber.Ctx) bool {
	switch c.Path() {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

func accessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		switch {
		case err == nil:
		case goerrors.As(err, &fiberErr):
			status = fiberErr.Code
		default:
			status = rwportal.StatusCode(err)
		}
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"htmx", rwportal.IsHTMX(c),
			"elapsed", time.Since(start),
		)
		return err
	}
}
