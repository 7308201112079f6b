package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

type contextKey string

const (
	ctxUserID      contextKey = "user_id"
	ctxRole        contextKey = "actor_role"
	ctxRequestInfo contextKey = "request_info"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext rebuilds the verified caller seeded by Auth.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return auth.Actor{}, false
	}
	role := enums.UserRole(RoleFromContext(ctx))
	if !role.IsValid() {
		return auth.Actor{}, false
	}
	return auth.Actor{UserID: userID, Role: role}, true
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if info := requestInfoFrom(ctx); info != nil {
		info.actor = &actor
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID.String())
	return context.WithValue(ctx, ctxRole, string(actor.Role))
}

// RequireActor is ActorFromContext for handlers, returning an Unauthorized
// error when the route was mounted without Auth.
func RequireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}
