package rwportal

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultCookieName   = "access_token"
	DefaultCookieMaxAge = 7 * 24 * time.Hour
)

// CookieOptions controls the token cookie.
type CookieOptions struct {
	Name   string
	MaxAge time.Duration
	// Secure forces the Secure flag even when the request did not arrive
	// over TLS, for deployments behind a TLS terminating proxy.
	Secure bool
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultCookieMaxAge
	}
	return o
}

// CookieTokenStore keeps the token in the request/response cookie pair of
// one fiber request.
type CookieTokenStore struct {
	c    *fiber.Ctx
	opts CookieOptions
	now  func() time.Time

	mu      sync.Mutex
	written bool
	token   string
}

func NewCookieTokenStore(c *fiber.Ctx, opts CookieOptions) *CookieTokenStore {
	return &CookieTokenStore{c: c, opts: opts.withDefaults(), now: time.Now}
}

func (s *CookieTokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		return s.token
	}
	return strings.Clone(s.c.Cookies(s.opts.Name))
}

func (s *CookieTokenStore) Persist(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Cookie(&fiber.Cookie{
		Name:     s.opts.Name,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(s.opts.MaxAge),
		MaxAge:   int(s.opts.MaxAge.Seconds()),
		Secure:   s.opts.Secure || s.c.Secure(),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	s.written = true
	s.token = token
}

func (s *CookieTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Cookie(&fiber.Cookie{
		Name:     s.opts.Name,
		Value:    "",
		Path:     "/",
		Expires:  s.now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		Secure:   s.opts.Secure || s.c.Secure(),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	s.written = true
	s.token = ""
}

// MemoryTokenStore keeps the token in memory. The CLI and tests use it.
type MemoryTokenStore struct {
	mu       sync.Mutex
	token    string
	persists int
	clears   int
}

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (m *MemoryTokenStore) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *MemoryTokenStore) Persist(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.persists++
}

func (m *MemoryTokenStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.clears++
}

// Clears returns how many times the token was cleared.
func (m *MemoryTokenStore) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// Persists returns how many times a token was written.
func (m *MemoryTokenStore) Persists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persists
}
