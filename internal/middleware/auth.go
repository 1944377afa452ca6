// Package middleware provides HTTP middleware for the BookMate API.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/bookmate/bookmate/internal/errors"
	internalhttputil "github.com/bookmate/bookmate/internal/httputil"
	"github.com/bookmate/bookmate/internal/logging"
)

// Claims are the service token claims. Subject names the caller and is
// recorded as the audit actor.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates HS256 service tokens.
type AuthMiddleware struct {
	secret    []byte
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret string, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &AuthMiddleware{
		secret:    []byte(secret),
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, apperrors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, apperrors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := r.Context()
		if claims.TenantID != "" {
			ctx = logging.WithTenantID(ctx, claims.TenantID)
		}
		if claims.Subject != "" {
			ctx = logging.WithActor(ctx, claims.Subject)
		}

		m.logger.WithContext(ctx).WithField("subject", claims.Subject).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	return claims, nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
		"error":  err.Error(),
	})
}

// IssueToken mints a service token for tenantID.
func IssueToken(secret, tenantID, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
