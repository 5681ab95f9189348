package rwportal

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the structured logger used across the portal. Messages are
// followed by key/value pairs, the same shape slog uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the options the session layer and the API client need.
type Config interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetRetryAttempts() int
	GetCookieName() string
	GetCookieMaxAge() time.Duration
	GetCookieSecure() bool
	GetProfileCacheSize() int
	GetProfileCacheTTL() time.Duration
	GetLoginRoute() string
	GetHomeRoute() string
	GetLoginEndpoint() string
	GetProfileEndpoint() string
	GetVerifyEndpoint() string
	GetGoogleAuthEndpoint() string
}

// TokenStore persists the bearer token between requests.
type TokenStore interface {
	Token() string
	Persist(token string)
	Clear()
}

// AuthAPI is the slice of the remote API the session store talks to.
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (string, *UserProfile, error)
	Profile(ctx context.Context, token string) (*UserProfile, error)
	Verify(ctx context.Context, token string) (*UserProfile, error)
}

// SessionBinding is what the API client needs from a session: the token to
// send and a way to drop it when the API rejects it.
type SessionBinding interface {
	Token() string
	Invalidate() bool
}

type defLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog logger to Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return defLogger{l: l}
}

func (d defLogger) logger() *slog.Logger {
	if d.l == nil {
		return slog.Default().With("module", "rwportal")
	}
	return d.l
}

func (d defLogger) Debug(msg string, args ...any) { d.logger().Debug(msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.logger().Info(msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.logger().Warn(msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.logger().Error(msg, args...) }
