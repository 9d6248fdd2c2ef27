package httputil

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/config"
)

// Claims represents the identity token claims issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	EmployeeID  string   `json:"employee_id,omitempty"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

// ActorMiddleware validates the bearer token and attaches the resulting
// Actor to the request context. Requests without a valid token are rejected;
// /health is exempt for monitoring.
func ActorMiddleware(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.JWTSecret), nil
			}, jwt.WithIssuer(cfg.Issuer))
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			a := &actor.Actor{
				ID:          claims.UserID,
				EmployeeID:  claims.EmployeeID,
				Name:        claims.Name,
				Email:       claims.Email,
				Permissions: claims.Permissions,
			}

			next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
		})
	}
}
