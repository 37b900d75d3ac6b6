package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

var testSecret = []byte("test-secret")

func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		if c.IsAdmin {
			w.Header().Set("X-Admin", "1")
		}
		_, _ = w.Write([]byte(c.ID))
	})
}

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, scans.Caller{ID: "admin-7", IsAdmin: true}, time.Hour)
	require.NoError(t, err)

	c, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-7", c.ID)
	assert.True(t, c.IsAdmin)

	_, err = ParseToken([]byte("other"), tok)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := IssueToken(testSecret, scans.Caller{ID: "artist-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, tok)
	assert.Error(t, err)
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "artist-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, tok)
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	h := JWTAuth(testSecret, "/health")(echoCaller(t))

	t.Run("public path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scans/x", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"missing Authorization header"}`, rec.Body.String())
	})

	t.Run("valid artist token", func(t *testing.T) {
		tok, err := IssueToken(testSecret, scans.Caller{ID: "artist-1"}, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/v1/scans/x", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "artist-1", rec.Body.String())
		assert.Empty(t, rec.Header().Get("X-Admin"))
	})
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(echoCaller(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/scans/flagged", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithCaller(req.Context(), scans.Caller{ID: "artist-1"})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithCaller(req.Context(), scans.Caller{ID: "admin-1", IsAdmin: true})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
