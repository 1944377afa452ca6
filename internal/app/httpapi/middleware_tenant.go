package httpapi

import (
	"net/http"

	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/logging"
)

// tenantMiddleware resolves the token's tenant once per request and stores
// the workspace in the context for the services.
func (h *handler) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ws, err := h.app.Tenants.Resolve(r.Context(), logging.GetTenantID(r.Context()))
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenants.WithWorkspace(r.Context(), ws)))
	})
}

// tenantID is set by the auth middleware and validated by tenantMiddleware.
func tenantID(r *http.Request) string {
	return logging.GetTenantID(r.Context())
}
