package rwportal

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Locals keys. Views see them through PassLocalsToViews.
const (
	LocalsSessionKey       = "session_store"
	LocalsUserKey          = "current_user"
	LocalsRoleKey          = "current_role"
	LocalsAuthenticatedKey = "is_authenticated"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the session store in the given context
func WithContext(ctx context.Context, store *SessionStore) context.Context {
	return context.WithValue(ctx, sessionCtxKey, store)
}

// FromContext finds the session store in the context.
func FromContext(ctx context.Context) (*SessionStore, bool) {
	store, ok := ctx.Value(sessionCtxKey).(*SessionStore)
	return store, ok && store != nil
}

// SessionFrom returns the session store the guard attached to the request.
func SessionFrom(c *fiber.Ctx) (*SessionStore, bool) {
	store, ok := c.Locals(LocalsSessionKey).(*SessionStore)
	return store, ok && store != nil
}

// CurrentUser returns the verified profile for the request, or nil.
func CurrentUser(c *fiber.Ctx) *UserProfile {
	if user, ok := c.Locals(LocalsUserKey).(*UserProfile); ok {
		return user
	}
	return nil
}

func exposeUser(c *fiber.Ctx, user *UserProfile) {
	c.Locals(LocalsUserKey, user)
	c.Locals(LocalsRoleKey, string(user.Role))
	c.Locals(LocalsAuthenticatedKey, true)
}

// IsHTMX reports a request issued by htmx.
func IsHTMX(c *fiber.Ctx) bool {
	return c.Get("HX-Request") == "true"
}
