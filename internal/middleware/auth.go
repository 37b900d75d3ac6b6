package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

type contextKey string

const (
	CallerKey    contextKey = "caller"
	RequestIDKey contextKey = "request_id"
)

const RoleAdmin = "admin"

// Claims carried by dashboard tokens. Subject is the artist or admin id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for caller.
func IssueToken(secret []byte, caller scans.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if caller.IsAdmin {
		claims.Role = RoleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates tokenString and returns the caller it names.
func ParseToken(secret []byte, tokenString string) (scans.Caller, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return scans.Caller{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return scans.Caller{}, errors.New("invalid subject in token")
	}
	return scans.Caller{ID: claims.Subject, IsAdmin: claims.Role == RoleAdmin}, nil
}

// JWTAuth validates the bearer token and stores the caller in context.
// Paths in public skip authentication.
func JWTAuth(secret []byte, public ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			caller, err := ParseToken(secret, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok || !caller.IsAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithCaller(ctx context.Context, c scans.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, c)
}

// CallerFromContext extracts the authenticated caller from context
func CallerFromContext(ctx context.Context) (scans.Caller, bool) {
	c, ok := ctx.Value(CallerKey).(scans.Caller)
	return c, ok
}
