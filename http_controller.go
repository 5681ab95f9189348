package rwportal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// Messages for the Google sign-in callback error codes.
const (
	MsgGoogleUnregistered = "Email tidak terdaftar"
	MsgGoogleFailed       = "Autentikasi Google gagal"
	MsgLoginFailed        = "Terjadi kesalahan saat login"
)

// RegisterAuthRoutes mounts the sign-in, sign-out and Google callback routes.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	guard := controller.Guard

	app.Get("/", controller.Index).Name("index")

	app.Get(controller.Routes.Login, guard.RedirectIfAuthenticated(), controller.LoginShow).
		Name("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		Name("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).Name("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut).Name("sign-out.post")

	app.Get(controller.Routes.GoogleStart, controller.GoogleStart).Name("google.start")
	app.Get(controller.Routes.GoogleCallback, controller.GoogleCallback).Name("google.callback")
}

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	GoogleStart    string
	GoogleCallback string
}

type AuthControllerViews struct {
	Login string
}

// AuthController serves the pages that create and end a session.
type AuthController struct {
	Debug    bool
	Logger   Logger
	Guard    *RouteGuard
	Registry *ViewRegistry
	Routes   *AuthControllerRoutes
	Views    *AuthControllerViews

	// GoogleURL is the API endpoint that starts Google sign-in.
	GoogleURL string
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if l != nil {
			a.Logger = l
		}
		return a
	}
}

func WithViewRegistry(r *ViewRegistry) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Registry = r
		return a
	}
}

func WithGoogleURL(u string) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.GoogleURL = u
		return a
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Debug = debug
		return a
	}
}

func NewAuthController(guard *RouteGuard, opts ...AuthControllerOption) *AuthController {
	if guard == nil {
		panic("auth controller requires a route guard")
	}

	a := &AuthController{
		Logger: defLogger{},
		Guard:  guard,
		Routes: &AuthControllerRoutes{
			Login:          guard.LoginRoute(),
			Logout:         "/logout",
			GoogleStart:    "/auth/google",
			GoogleCallback: "/auth/callback",
		},
		Views: &AuthControllerViews{
			Login: "login",
		},
	}
	if guard.client != nil {
		a.GoogleURL = guard.client.URL(DefaultGoogleEndpoint)
	}

	for _, opt := range opts {
		a = opt(a)
	}
	return a
}

// Index sends the visitor to the home route or to login.
func (a *AuthController) Index(c *fiber.Ctx) error {
	session, err := a.Guard.Store(c).Verify(c.UserContext())
	if err == nil && session.IsAuthenticated() {
		return c.Redirect(a.Guard.HomeRoute(), fiber.StatusFound)
	}
	return c.Redirect(a.Guard.LoginRoute(), fiber.StatusFound)
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	return a.renderLogin(c, fiber.StatusOK, Credentials{}, nil, "")
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	creds := Credentials{}
	if err := c.BodyParser(&creds); err != nil {
		a.Logger.Warn("login form parse failed", "error", err)
		return a.renderLogin(c, fiber.StatusBadRequest, creds, nil, MsgValidation)
	}

	if a.Debug {
		a.Logger.Debug("login attempt", "payload", print.MaybePrettyJSON(map[string]string{
			"username": creds.Username,
			"password": "********",
		}))
	}

	store := a.Guard.Store(c)
	if _, err := store.Login(c.UserContext(), creds); err != nil {
		return a.renderLogin(c, StatusCode(err), creds, FieldErrors(err), UserMessage(err))
	}

	return c.Redirect(a.Guard.HomeRoute(), fiber.StatusSeeOther)
}

// LogOut clears the session and forgets the user's list views.
func (a *AuthController) LogOut(c *fiber.Ctx) error {
	store := a.Guard.Store(c)
	if token := store.Token(); token != "" && a.Registry != nil {
		a.Registry.Forget(token)
	}
	store.Logout()

	if c.Method() == fiber.MethodGet {
		return c.Redirect(a.Guard.LoginRoute(), fiber.StatusFound)
	}
	return c.Redirect(a.Guard.LoginRoute(), fiber.StatusSeeOther)
}

// GoogleStart hands the browser to the API's Google sign-in flow.
func (a *AuthController) GoogleStart(c *fiber.Ctx) error {
	if a.GoogleURL == "" {
		return fiber.ErrNotFound
	}
	return c.Redirect(a.GoogleURL, fiber.StatusFound)
}

// GoogleCallback receives ?token= on success or ?error= on failure.
func (a *AuthController) GoogleCallback(c *fiber.Ctx) error {
	if code := c.Query("error"); code != "" {
		a.Logger.Info("google sign-in rejected", "error", code)
		return a.renderLogin(c, fiber.StatusUnauthorized, Credentials{}, nil, GoogleErrorMessage(code))
	}

	token := c.Query("token")
	if token == "" {
		return a.renderLogin(c, fiber.StatusBadRequest, Credentials{}, nil, MsgLoginFailed)
	}

	if _, err := a.Guard.Store(c).VerifyToken(c.UserContext(), token); err != nil {
		msg := MsgGoogleFailed
		if IsNetworkError(err) {
			msg = MsgNetwork
		}
		return a.renderLogin(c, StatusCode(err), Credentials{}, nil, msg)
	}

	return c.Redirect(a.Guard.HomeRoute(), fiber.StatusFound)
}

// GoogleErrorMessage maps the callback error code to the login page message.
func GoogleErrorMessage(code string) string {
	switch code {
	case "unauthorized":
		return MsgGoogleUnregistered
	case "authentication_failed":
		return MsgGoogleFailed
	default:
		return MsgLoginFailed
	}
}

func (a *AuthController) renderLogin(c *fiber.Ctx, status int, creds Credentials, fields map[string]string, message string) error {
	creds.Password = ""
	return c.Status(status).Render(a.Views.Login, ViewContext(c, fiber.Map{
		"record":     creds,
		"errors":     fields,
		"error":      message,
		"google_url": a.Routes.GoogleStart,
	}))
}
