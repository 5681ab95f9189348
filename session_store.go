package rwportal

import (
	"context"
	"sync"
	"time"
)

// SessionStore is the single writer for a session. Login, Verify,
// VerifyToken, Logout and Invalidate change it; everything else reads.
type SessionStore struct {
	tokens  TokenStore
	auth    AuthAPI
	cache   *ProfileCache
	logger  Logger
	metrics *Metrics
	now     func() time.Time

	mu          sync.RWMutex
	session     Session
	invalidated bool
}

type SessionStoreOption func(*SessionStore) *SessionStore

func WithProfileCache(cache *ProfileCache) SessionStoreOption {
	return func(s *SessionStore) *SessionStore {
		s.cache = cache
		return s
	}
}

func WithSessionLogger(l Logger) SessionStoreOption {
	return func(s *SessionStore) *SessionStore {
		if l != nil {
			s.logger = l
		}
		return s
	}
}

func WithSessionMetrics(m *Metrics) SessionStoreOption {
	return func(s *SessionStore) *SessionStore {
		s.metrics = m
		return s
	}
}

func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) *SessionStore {
		if now != nil {
			s.now = now
		}
		return s
	}
}

// NewSessionStore creates a store over the persisted token in tokens.
// The session starts unauthenticated until Verify or Login succeeds.
func NewSessionStore(tokens TokenStore, auth AuthAPI, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		tokens: tokens,
		auth:   auth,
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		s = opt(s)
	}
	s.session = unauthenticatedSession(tokens.Token())
	return s
}

// Current returns a snapshot of the session.
func (s *SessionStore) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Status returns the current lifecycle status.
func (s *SessionStore) Status() Status {
	return s.Current().Status
}

// User returns the verified profile, nil unless authenticated.
func (s *SessionStore) User() *UserProfile {
	return s.Current().User
}

// Token returns the bearer token requests should carry.
func (s *SessionStore) Token() string {
	return s.Current().Token
}

// Invalidated reports whether an API 401 dropped this session.
func (s *SessionStore) Invalidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidated
}

// Login sends creds to the API. On success the token is persisted and the
// profile resolved; on failure the session is left unauthenticated and
// nothing is persisted.
func (s *SessionStore) Login(ctx context.Context, creds Credentials) (Session, error) {
	creds = creds.Normalized()
	if err := ValidateForm(creds); err != nil {
		return s.fail(), err
	}

	token, user, err := s.auth.Login(ctx, creds)
	if err == nil && user == nil {
		user, err = s.auth.Profile(ctx, token)
	}
	if err != nil {
		s.logger.Info("login failed", "username", creds.Username, "kind", KindOf(err).String())
		s.metrics.sessionEvent("login_failed")
		return s.fail(), err
	}

	s.metrics.sessionEvent("login")
	s.logger.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return s.establish(token, user), nil
}

// VerifyToken adopts a token issued out of band, such as the Google
// sign-in callback, once the API confirms it.
func (s *SessionStore) VerifyToken(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return s.fail(), ErrNoSession
	}

	user, err := s.auth.Verify(ctx, token)
	if err != nil {
		s.logger.Info("token verification failed", "kind", KindOf(err).String())
		s.metrics.sessionEvent("verify_failed")
		return s.fail(), err
	}

	s.metrics.sessionEvent("login_oauth")
	return s.establish(token, user), nil
}

// Verify resolves the persisted token into a profile. Any failure,
// including an unreachable API, clears the token.
func (s *SessionStore) Verify(ctx context.Context) (Session, error) {
	s.mu.Lock()
	token := s.tokens.Token()
	if token == "" {
		s.session = unauthenticatedSession("")
		s.mu.Unlock()
		return s.Current(), ErrNoSession
	}
	if s.session.IsAuthenticated() && s.session.Token == token {
		current := s.session
		s.mu.Unlock()
		return current, nil
	}
	s.session = verifyingSession(token)
	s.mu.Unlock()

	user, err := s.resolveProfile(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status != StatusVerifying || s.session.Token != token {
		// Logout or Invalidate ran while the profile was in flight.
		return s.session, ErrNoSession
	}

	if err != nil {
		s.logger.Info("session verification failed", "kind", KindOf(err).String(), "error", err)
		s.metrics.sessionEvent("verify_failed")
		s.clearLocked(token)
		return s.session, err
	}

	s.session = authenticatedSession(token, user)
	return s.session, nil
}

// Logout clears the token and profile. It never fails.
func (s *SessionStore) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(s.session.Token)
	s.metrics.sessionEvent("logout")
}

// Invalidate is called when the API rejects the token. Only the first call
// clears the session and returns true, so concurrent 401s collapse into a
// single logout.
func (s *SessionStore) Invalidate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return false
	}
	s.invalidated = true
	s.clearLocked(s.session.Token)
	s.metrics.sessionEvent("expired")
	return true
}

func (s *SessionStore) resolveProfile(ctx context.Context, token string) (*UserProfile, error) {
	if tokenExpired(token, s.now()) {
		return nil, NewUnauthorizedError()
	}

	if s.cache != nil {
		if user, ok := s.cache.Get(token); ok {
			s.metrics.profileCache(true)
			return user, nil
		}
		s.metrics.profileCache(false)
	}

	user, err := s.auth.Profile(ctx, token)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(token, user)
	}
	return user, nil
}

func (s *SessionStore) establish(token string, user *UserProfile) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens.Persist(token)
	if s.cache != nil {
		s.cache.Add(token, user)
	}
	s.invalidated = false
	s.session = authenticatedSession(token, user)
	return s.session
}

func (s *SessionStore) fail() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = unauthenticatedSession(s.tokens.Token())
	return s.session
}

func (s *SessionStore) clearLocked(token string) {
	if token != "" && s.cache != nil {
		s.cache.Remove(token)
	}
	if s.tokens.Token() != "" {
		s.tokens.Clear()
	}
	s.session = unauthenticatedSession("")
}
