package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

var (
	ErrTokenMismatch = goerrors.New("CSRF token mismatch", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode("CSRF_MISMATCH")
	ErrTokenMissing = goerrors.New("CSRF token missing", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode("CSRF_MISSING")
	ErrTokenExpired = goerrors.New("CSRF token expired", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode("CSRF_EXPIRED")
)

// DefaultTokenLength is the default nonce length for CSRF tokens
const DefaultTokenLength = 32

// DefaultContextKey is the default key for storing CSRF tokens in locals
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// DefaultSessionCookie is the cookie holding the anonymous CSRF session id
const DefaultSessionCookie = "csrf_sid"

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(*fiber.Ctx) bool

	// TokenLength defines the nonce length of the generated token
	TokenLength int

	// ContextKey defines the locals key the token is stored under
	ContextKey string

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// TokenLookup defines where to look for the token
	// Format: "form:_token,header:X-CSRF-Token"
	TokenLookup string

	// SessionKey binds tokens to the caller. Defaults to a digest of the
	// SessionCookie value.
	SessionKey func(*fiber.Ctx) string

	// SessionCookie names the anonymous id cookie the default SessionKey uses.
	SessionCookie string

	// ErrorHandler defines the error handler
	ErrorHandler fiber.ErrorHandler

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// Expiration defines how long tokens are valid
	Expiration time.Duration

	// SecureKey signs the tokens. Must be at least 32 bytes.
	SecureKey []byte

	// Now is the clock used for issuing and expiring tokens
	Now func() time.Time
}

// TokenExtractor defines a function to extract token from request
type TokenExtractor func(*fiber.Ctx) string

// New creates a new CSRF middleware. Tokens are stateless: an HMAC over a
// timestamp, a nonce and the caller's session key.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		token, err := generateToken(c, cfg)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, token)
		c.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
		c.Locals(cfg.ContextKey+"_header", cfg.HeaderName)

		// safe methods don't require validation
		if slices.Contains(cfg.SafeMethods, strings.ToUpper(c.Method())) {
			return c.Next()
		}

		received := extractToken(c, cfg)
		if received == "" {
			return cfg.ErrorHandler(c, ErrTokenMissing)
		}

		if err := validateToken(c, cfg, received); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		return c.Next()
	}
}

func generateToken(c *fiber.Ctx, cfg Config) (string, error) {
	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := cfg.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), cfg.SessionKey(c))

	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(signature))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(c *fiber.Ctx, cfg Config, token string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, sessionFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(sessionFromToken), []byte(cfg.SessionKey(c))) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(cfg.Expiration)
		if cfg.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func extractToken(c *fiber.Ctx, cfg Config) string {
	for _, extractor := range getExtractors(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName) {
		if token := extractor(c); token != "" {
			return token
		}
	}
	return ""
}

// sessionKeyFromCookie keys tokens by an anonymous session id cookie,
// issued on first sight. It outlives login and logout so a form rendered
// before signing in still validates after.
func sessionKeyFromCookie(cookie string) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if key, ok := c.Locals(cookie).(string); ok && key != "" {
			return key
		}

		sid := c.Cookies(cookie)
		if sid == "" {
			raw := make([]byte, 16)
			if _, err := io.ReadFull(rand.Reader, raw); err != nil {
				return "ip" + strings.ReplaceAll(c.IP(), ":", "_")
			}
			sid = hex.EncodeToString(raw)
			c.Cookie(&fiber.Cookie{
				Name:     cookie,
				Value:    sid,
				Path:     "/",
				HTTPOnly: true,
				Secure:   c.Secure(),
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		sum := sha256.Sum256([]byte(sid))
		key := hex.EncodeToString(sum[:12])
		c.Locals(cookie, key)
		return key
	}
}

// getExtractors returns token extractors based on configuration
func getExtractors(tokenLookup, formField, header string) []TokenExtractor {
	if tokenLookup == "" {
		return []TokenExtractor{
			extractorFromForm(formField),
			extractorFromHeader(header),
		}
	}

	var extractors []TokenExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		part = strings.TrimSpace(part)
		if field, ok := strings.CutPrefix(part, "form:"); ok {
			extractors = append(extractors, extractorFromForm(field))
		} else if name, ok := strings.CutPrefix(part, "header:"); ok {
			extractors = append(extractors, extractorFromHeader(name))
		}
	}
	return extractors
}

func extractorFromForm(fieldName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.FormValue(fieldName)
	}
}

func extractorFromHeader(headerName string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace}
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = DefaultSessionCookie
	}
	if cfg.SessionKey == nil {
		cfg.SessionKey = sessionKeyFromCookie(cfg.SessionCookie)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)
	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	switch {
	case goerrors.Is(err, ErrTokenMissing):
		return c.Status(fiber.StatusBadRequest).SendString("CSRF token missing")
	case goerrors.Is(err, ErrTokenMismatch):
		return c.Status(fiber.StatusForbidden).SendString("CSRF token mismatch")
	case goerrors.Is(err, ErrTokenExpired):
		return c.Status(fiber.StatusForbidden).SendString("CSRF token expired")
	default:
		return c.Status(fiber.StatusInternalServerError).SendString("CSRF validation error")
	}
}

func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// TemplateHelpers returns the CSRF values templates render, read from the
// request locals the middleware populated.
func TemplateHelpers(c *fiber.Ctx, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token, _ := c.Locals(tokenKey).(string)

	fieldName := DefaultFormFieldName
	if val, ok := c.Locals(tokenKey + "_field").(string); ok && val != "" {
		fieldName = val
	}

	headerName := DefaultHeaderName
	if val, ok := c.Locals(tokenKey + "_header").(string); ok && val != "" {
		headerName = val
	}

	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
