package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/medicart/medicart-api/api/responses"
	pkgAuth "github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/config"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
)

// IdentitySyncer makes sure the token subject exists as a local user row.
type IdentitySyncer interface {
	Sync(ctx context.Context, identity pkgAuth.AccessTokenPayload) error
}

// Auth validates a bearer token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, users IdentitySyncer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if users != nil {
				identity := pkgAuth.AccessTokenPayload{UserID: claims.UserID, Role: claims.Role, Email: claims.Email}
				if err := users.Sync(r.Context(), identity); err != nil {
					if pkgerrors.As(err) == nil {
						err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync user")
					}
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
			}

			ctx := WithActor(r.Context(), pkgAuth.Actor{UserID: claims.UserID, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
