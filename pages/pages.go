// Package pages serves the portal screens. Every handler talks to the RW
// API with the visitor's own session through the api package.
package pages

import (
	"maps"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
	"github.com/goliatone/go-rwportal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// List view names. They key the per session sequencers.
const (
	ViewTransactions = "transactions"
	ViewComplaints   = "complaints"
	ViewUsers        = "users"
)

// Handlers holds what the page handlers share across requests.
type Handlers struct {
	Logger   rwportal.Logger
	Guard    *rwportal.RouteGuard
	Registry *rwportal.ViewRegistry
	Metrics  *rwportal.Metrics
	Gatherer prometheus.Gatherer
	Board    []config.BoardMember
	Paths    api.Paths

	// client is the unauthenticated API client, used for readiness.
	client *rwportal.Client
	now    func() time.Time
}

type Option func(*Handlers) *Handlers

func WithLogger(l rwportal.Logger) Option {
	return func(h *Handlers) *Handlers {
		if l != nil {
			h.Logger = l
		}
		return h
	}
}

func WithRegistry(r *rwportal.ViewRegistry) Option {
	return func(h *Handlers) *Handlers {
		if r != nil {
			h.Registry = r
		}
		return h
	}
}

func WithMetrics(m *rwportal.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handlers) *Handlers {
		h.Metrics = m
		h.Gatherer = g
		return h
	}
}

func WithBoard(board []config.BoardMember) Option {
	return func(h *Handlers) *Handlers {
		h.Board = board
		return h
	}
}

func WithPaths(p api.Paths) Option {
	return func(h *Handlers) *Handlers {
		h.Paths = p.WithDefaults()
		return h
	}
}

// WithClock replaces time.Now, used for form defaults.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) *Handlers {
		if now != nil {
			h.now = now
		}
		return h
	}
}

func New(guard *rwportal.RouteGuard, client *rwportal.Client, opts ...Option) *Handlers {
	if guard == nil || client == nil {
		panic("pages: guard and client are required")
	}

	h := &Handlers{
		Logger:   rwportal.NewSlogLogger(nil),
		Guard:    guard,
		Registry: rwportal.NewViewRegistry(0, 0),
		Board:    config.DefaultBoard(),
		Paths:    api.DefaultPaths(),
		client:   client,
		now:      time.Now,
	}
	for _, opt := range opts {
		h = opt(h)
	}
	return h
}

// Register mounts the portal pages. Everything except the probes runs
// behind the route guard, attached per route so unknown paths still 404.
func Register(app fiber.Router, h *Handlers) {
	app.Get("/healthz", h.Healthz).Name("healthz")
	app.Get("/readyz", h.Readyz).Name("readyz")
	if h.Gatherer != nil {
		app.Get("/metrics", h.MetricsHandler()).Name("metrics")
	}

	guard := h.Guard
	canRecord := guard.RequireRole(rwportal.RoleAdmin, rwportal.RoleBendahara)
	canModerate := guard.RequireRole(rwportal.RoleAdmin, rwportal.RoleRT, rwportal.RoleRW)
	canManage := guard.RequireRole(rwportal.RoleAdmin)

	auth := guard.Protected()

	app.Get("/welcome", auth, h.Welcome).Name("welcome")
	app.Get("/dashboard", auth, h.Dashboard).Name("dashboard")
	app.Get("/pengurus", auth, h.BoardIndex).Name("board")

	app.Get("/transactions", auth, h.TransactionsIndex).Name("transactions.index")
	app.Get("/transactions/new", auth, canRecord, h.TransactionsNew).Name("transactions.new")
	app.Post("/transactions", auth, canRecord, h.TransactionsCreate).Name("transactions.create")

	app.Get("/complaints", auth, h.ComplaintsIndex).Name("complaints.index")
	app.Get("/complaints/new", auth, h.ComplaintsNew).Name("complaints.new")
	app.Post("/complaints", auth, h.ComplaintsCreate).Name("complaints.create")
	app.Get("/complaints/:id", auth, h.ComplaintsShow).Name("complaints.show")
	app.Post("/complaints/:id/vote", auth, h.ComplaintsVote).Name("complaints.vote")
	app.Post("/complaints/:id/comments", auth, h.ComplaintsComment).Name("complaints.comment")
	app.Post("/complaints/:id/status", auth, canModerate, h.ComplaintsStatus).Name("complaints.status")

	app.Get("/users", auth, canManage, h.UsersIndex).Name("users.index")
	app.Get("/users/new", auth, canManage, h.UsersNew).Name("users.new")
	app.Get("/users/export", auth, canManage, h.UsersExport).Name("users.export")
	app.Post("/users", auth, canManage, h.UsersCreate).Name("users.create")
	app.Get("/users/:id/edit", auth, canManage, h.UsersEdit).Name("users.edit")
	app.Post("/users/:id", auth, canManage, h.UsersUpdate).Name("users.update")
	app.Post("/users/:id/delete", auth, canManage, h.UsersDelete).Name("users.delete")
}

// service returns the API bindings for the request's session.
func (h *Handlers) service(c *fiber.Ctx) *api.Service {
	return api.New(h.Guard.Client(c), api.WithPaths(h.Paths), api.WithLogger(h.Logger))
}

// sequencer returns the request ordering state of view for this session.
func (h *Handlers) sequencer(c *fiber.Ctx, view string) *rwportal.Sequencer {
	return h.Registry.Sequencer(h.Guard.Store(c).Token(), view)
}

func listOf[T any](h *Handlers, c *fiber.Ctx, view string, caps rwportal.Capabilities, fetch rwportal.Fetcher[T]) *rwportal.ResourceList[T] {
	return rwportal.NewResourceList(view, caps, fetch,
		rwportal.WithSequencer[T](h.sequencer(c, view)),
		rwportal.WithListMetrics[T](h.Metrics),
		rwportal.WithListLogger[T](h.Logger),
	)
}

// render merges data over the request helpers and the page helpers.
func (h *Handlers) render(c *fiber.Ctx, status int, view string, data fiber.Map) error {
	bind := fiber.Map(Helpers())
	maps.Copy(bind, data)
	return c.Status(status).Render(view, rwportal.ViewContext(c, bind))
}

// stale answers a superseded list request. htmx keeps what is on screen.
func stale(c *fiber.Ctx) error {
	c.Set("HX-Reswap", "none")
	return c.SendStatus(fiber.StatusNoContent)
}

// pageError decides how a failed API call surfaces. A 401 goes back to
// the guard, which turns it into the login redirect. Other errors are
// shown inline on the page.
func pageError(err error) (inline string, passthrough error) {
	if rwportal.IsUnauthorized(err) {
		return "", err
	}
	return rwportal.UserMessage(err), nil
}

// listTemplate picks the partial for htmx requests.
func listTemplate(c *fiber.Ctx, full, partial string) string {
	if rwportal.IsHTMX(c) {
		return partial
	}
	return full
}

// idParam reads the :id route parameter.
func idParam(c *fiber.Ctx) (rwportal.ID, error) {
	id := c.Params("id")
	if id == "" {
		return "", goerrors.New(rwportal.MsgNotFound, goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(rwportal.TextCodeNotFound)
	}
	return rwportal.ID(id), nil
}

// formStatus keeps htmx form responses at 200 so the re-rendered form
// with its errors is swapped in.
func formStatus(c *fiber.Ctx, status int) int {
	if rwportal.IsHTMX(c) {
		return fiber.StatusOK
	}
	return status
}

// seeOther redirects after a successful form post.
func seeOther(c *fiber.Ctx, location string) error {
	if rwportal.IsHTMX(c) {
		c.Set("HX-Redirect", location)
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Redirect(location, fiber.StatusSeeOther)
}

// withQuery appends the encoded list params to path.
func withQuery(path string, params rwportal.ListParams) string {
	if q := params.QueryString(); q != "" {
		return path + "?" + q
	}
	return path
}
