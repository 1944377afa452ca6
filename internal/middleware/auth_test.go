package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/logging"
)

const testSecret = "0123456789abcdef-test"

type seen struct {
	tenant, actor, trace string
	called               bool
}

func capture(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.tenant = logging.GetTenantID(r.Context())
		s.actor = logging.GetActor(r.Context())
		s.trace = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "acme", "web-tier", time.Hour)
	require.NoError(t, err)

	var s seen
	h := NewAuthMiddleware(testSecret, nil, nil).Handler(capture(&s))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pnl", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", s.tenant)
	assert.Equal(t, "web-tier", s.actor)
}

func TestAuthRejects(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: "acme",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{TenantID: "acme"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongKey, err := IssueToken("another-secret-of-length", "acme", "x", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TenantID: "acme"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"expired":        "Bearer " + expiredToken,
		"no expiry":      "Bearer " + noExpiry,
		"wrong key":      "Bearer " + wrongKey,
		"alg none":       "Bearer " + none,
		"garbage":        "Bearer not.a.token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var s seen
			h := NewAuthMiddleware(testSecret, nil, nil).Handler(capture(&s))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/pnl", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, s.called)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.NotEmpty(t, body["code"])
		})
	}
}

func TestAuthSkipPaths(t *testing.T) {
	var s seen
	h := NewAuthMiddleware(testSecret, nil, []string{"/health"}).Handler(capture(&s))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.called)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("", "acme", "x", time.Hour)
	assert.Error(t, err)
}
