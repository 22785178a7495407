package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"paflow/pkg/domain"
	"paflow/pkg/requestcontext"
)

// SessionClaims are the claims issued by the external session collaborator.
// The core only decodes them; it never issues or refreshes tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	ScopeID int64  `json:"scope"`
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + desc + `"}`))
}

// RequireActor validates the bearer token and attaches the resulting
// ActorContext to the request context. Requests without a valid token are
// rejected before reaching any handler.
func RequireActor(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeAuthError(w, "Missing or invalid Authorization header")
				return
			}

			claims := &SessionClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeAuthError(w, "Invalid or expired token")
				return
			}

			actorID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || actorID <= 0 {
				logger.WarnContext(ctx, "unauthorized access - malformed subject",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeAuthError(w, "Invalid or expired token")
				return
			}
			role := domain.Role(claims.Role)
			if !role.Valid() {
				logger.WarnContext(ctx, "unauthorized access - unknown role",
					"role", claims.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeAuthError(w, "Invalid or expired token")
				return
			}

			actor := domain.ActorContext{ActorID: actorID, Role: role, ScopeID: claims.ScopeID}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
