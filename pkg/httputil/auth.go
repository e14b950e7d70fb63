package httputil

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// ActorClaims are the claims the upstream auth service puts in access tokens.
type ActorClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// ActorFromToken verifies the Bearer token on each request and places the
// resulting actor in the context. Requests without a token pass through with
// no actor; handlers that require one fall back to "system" attribution.
func ActorFromToken(cfg *config.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				Error(w, errors.TokenInvalid())
				return
			}

			claims := &ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.TokenInvalid()
				}
				return []byte(cfg.Secret), nil
			}, jwt.WithIssuer(cfg.Issuer))
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					Error(w, errors.TokenExpired())
					return
				}
				Error(w, errors.TokenInvalid())
				return
			}
			if !token.Valid {
				Error(w, errors.TokenInvalid())
				return
			}

			ctx := actor.WithActor(r.Context(), &actor.Actor{
				ID:       claims.UserID,
				Name:     claims.Name,
				Email:    claims.Email,
				RoleName: claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
