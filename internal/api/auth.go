package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorClaims carry the clinic identity of an operator session. The
// engine never reads ambient auth state; the middleware resolves the
// claim once and the clinic id travels as an explicit parameter.
type OperatorClaims struct {
	ClinicID string `json:"clinic_id"`
	jwt.RegisteredClaims
}

// ClinicAuthMiddleware guards operator routes with an HS256 bearer token.
func ClinicAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}

			clinicID, err := uuid.Parse(claims.ClinicID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid clinic claim")
				return
			}

			ctx := context.WithValue(r.Context(), clinicIDKey, clinicID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClinicID retrieves the authenticated clinic id from context.
func GetClinicID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(clinicIDKey).(uuid.UUID)
	return id, ok
}

// IssueOperatorToken signs a clinic-scoped bearer token. Used by the
// seed command to hand out dev credentials.
func IssueOperatorToken(clinicID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &OperatorClaims{
		ClinicID: clinicID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clinicID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
