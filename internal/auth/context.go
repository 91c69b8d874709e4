package auth

import (
	"context"

	"github.com/ayush/favorites-app/internal/models"
)

type contextKey string

const sessionKeyCtx contextKey = "session"

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, sessionKeyCtx, sess)
}

// FromContext returns the session stored by the authentication middleware.
func FromContext(ctx context.Context) (*models.Session, bool) {
	sess, ok := ctx.Value(sessionKeyCtx).(*models.Session)
	return sess, ok && sess != nil
}
