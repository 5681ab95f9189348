package rwportal

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	DefaultLoginRoute = "/login"
	DefaultHomeRoute  = "/welcome"
)

// RouteGuard gates protected routes on a verified session. Each request
// gets its own SessionStore over the token cookie; the profile cache and
// the API client are shared.
type RouteGuard struct {
	Logger  Logger
	client  *Client
	auth    AuthAPI
	cache   *ProfileCache
	metrics *Metrics
	cookie  CookieOptions

	loginRoute string
	homeRoute  string
}

type GuardOption func(*RouteGuard) *RouteGuard

func WithGuardLogger(l Logger) GuardOption {
	return func(g *RouteGuard) *RouteGuard {
		if l != nil {
			g.Logger = l
		}
		return g
	}
}

func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.metrics = m
		return g
	}
}

// WithAuthAPI replaces the API the guard verifies tokens against.
func WithAuthAPI(api AuthAPI) GuardOption {
	return func(g *RouteGuard) *RouteGuard {
		if api != nil {
			g.auth = api
		}
		return g
	}
}

func WithGuardProfileCache(cache *ProfileCache) GuardOption {
	return func(g *RouteGuard) *RouteGuard {
		g.cache = cache
		return g
	}
}

// NewRouteGuard creates a guard over client using cfg for cookie and route settings.
func NewRouteGuard(cfg Config, client *Client, opts ...GuardOption) *RouteGuard {
	g := &RouteGuard{
		Logger: defLogger{},
		client: client,
		auth:   NewAuthAPI(client, cfg),
		cache:  NewProfileCache(cfg.GetProfileCacheSize(), cfg.GetProfileCacheTTL()),
		cookie: CookieOptions{
			Name:   cfg.GetCookieName(),
			MaxAge: cfg.GetCookieMaxAge(),
			Secure: cfg.GetCookieSecure(),
		}.withDefaults(),
		loginRoute: orDefault(cfg.GetLoginRoute(), DefaultLoginRoute),
		homeRoute:  orDefault(cfg.GetHomeRoute(), DefaultHomeRoute),
	}

	for _, opt := range opts {
		g = opt(g)
	}
	return g
}

func (g *RouteGuard) LoginRoute() string { return g.loginRoute }
func (g *RouteGuard) HomeRoute() string  { return g.homeRoute }

// Store returns the request's session store, creating it on first use.
func (g *RouteGuard) Store(c *fiber.Ctx) *SessionStore {
	if store, ok := SessionFrom(c); ok {
		return store
	}

	store := NewSessionStore(
		NewCookieTokenStore(c, g.cookie),
		g.auth,
		WithProfileCache(g.cache),
		WithSessionLogger(g.Logger),
		WithSessionMetrics(g.metrics),
	)
	c.Locals(LocalsSessionKey, store)
	c.SetUserContext(WithContext(c.UserContext(), store))
	return store
}

// Client returns an API client bound to the request's session.
func (g *RouteGuard) Client(c *fiber.Ctx) *Client {
	return g.client.WithSession(g.Store(c))
}

// Protected verifies the session before the handler runs. Unverified
// requests never reach the handler. If the API rejects the token while
// the handler runs, the response becomes a single redirect to login.
func (g *RouteGuard) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		store := g.Store(c)

		session, err := store.Verify(c.UserContext())
		if err != nil || !session.IsAuthenticated() {
			g.Logger.Info("protected route without valid session, redirecting to login",
				"path", c.Path(),
				"kind", KindOf(err).String(),
			)
			return g.RedirectToLogin(c)
		}

		exposeUser(c, session.User)

		err = c.Next()
		if store.Invalidated() || IsUnauthorized(err) {
			store.Invalidate()
			return g.RedirectToLogin(c)
		}
		return err
	}
}

// RedirectIfAuthenticated sends a visitor who already has a valid session
// to the home route. Used on the login page.
func (g *RouteGuard) RedirectIfAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Cookies(g.cookie.Name) == "" {
			return c.Next()
		}

		session, err := g.Store(c).Verify(c.UserContext())
		if err == nil && session.IsAuthenticated() {
			return c.Redirect(g.homeRoute, fiber.StatusFound)
		}
		return c.Next()
	}
}

// RequireRole lets the request through only for the given roles. It must
// run after Protected.
func (g *RouteGuard) RequireRole(roles ...UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return g.RedirectToLogin(c)
		}
		if !user.Role.Is(roles...) {
			g.Logger.Info("role not allowed", "path", c.Path(), "role", user.Role, "allowed", roles)
			return NewForbiddenError()
		}
		return c.Next()
	}
}

// RedirectToLogin answers with one redirect to the login route.
// There is no return-to parameter.
func (g *RouteGuard) RedirectToLogin(c *fiber.Ctx) error {
	c.Response().ResetBody()

	if IsHTMX(c) {
		c.Set("HX-Redirect", g.loginRoute)
		return c.SendStatus(fiber.StatusNoContent)
	}

	status := fiber.StatusSeeOther
	if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
		status = fiber.StatusFound
	}
	return c.Redirect(g.loginRoute, status)
}

// ErrorHandler is the fiber application error handler. Auth errors become
// a redirect, authorization errors a 403 page, everything else an error
// page with the inline message.
func (g *RouteGuard) ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		view := "errors/500"
		if fiberErr.Code == fiber.StatusNotFound {
			view = "errors/404"
		}
		return c.Status(fiberErr.Code).Render(view, fiber.Map{
			"message": fiberErr.Message,
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, MsgGeneric).
			WithCode(goerrors.CodeInternal)
	}

	g.Logger.Info(
		"request error",
		"path", c.Path(),
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch KindOf(richErr) {
	case KindUnauthorized:
		return g.RedirectToLogin(c)
	case KindForbidden:
		return c.Status(fiber.StatusForbidden).Render("errors/403", fiber.Map{
			"message": MsgForbidden,
		})
	case KindNotFound:
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{
			"message": UserMessage(richErr),
		})
	default:
		status := richErr.Code
		if status < 400 || status > 599 {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).Render("errors/500", fiber.Map{
			"message": UserMessage(richErr),
		})
	}
}
