package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"fingov/internal/rules"
)

type actorKey struct{}

// GetActor retrieves the caller context decoded by ActorContext.
func GetActor(ctx context.Context) (rules.UserContext, bool) {
	user, ok := ctx.Value(actorKey{}).(rules.UserContext)
	return user, ok
}

// ActorContext decodes the bearer token's claims (sub, name, role, tenant,
// cost_centers) into the caller context the engines consume. It does not
// authenticate users beyond verifying the token signature; issuing tokens is
// someone else's job.
func ActorContext(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			user, err := decodeActor(token, signingKey)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func decodeActor(token string, signingKey []byte) (rules.UserContext, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return signingKey, nil
	})
	if err != nil {
		return rules.UserContext{}, err
	}
	if !parsed.Valid {
		return rules.UserContext{}, fmt.Errorf("token is not valid")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return rules.UserContext{}, fmt.Errorf("token has no subject")
	}

	user := rules.UserContext{
		UserID:   sub,
		UserName: stringClaim(claims, "name"),
		Role:     stringClaim(claims, "role"),
		TenantID: stringClaim(claims, "tenant"),
	}
	if raw, ok := claims["cost_centers"].([]any); ok {
		for _, v := range raw {
			if cc, ok := v.(string); ok {
				user.AllowedCostCenters = append(user.AllowedCostCenters, cc)
			}
		}
	}
	return user, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
