// Package httpapi exposes the BookMate REST surface.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/bookmate/bookmate/internal/app"
	"github.com/bookmate/bookmate/internal/app/metrics"
	"github.com/bookmate/bookmate/internal/httputil"
	"github.com/bookmate/bookmate/internal/logging"
	"github.com/bookmate/bookmate/internal/middleware"
)

// Config holds the HTTP-facing settings.
type Config struct {
	ServiceSecret string
	CORSOrigins   []string
	// Limiter defaults to 10 rps with a burst of 20.
	Limiter *middleware.RateLimiter
	// Ready reports dependency health on /health. Nil means always ready.
	Ready func(ctx context.Context) error
}

type handler struct {
	app *app.Application
	log *logging.Logger
}

// NewHandler returns the routed API with its middleware chain.
func NewHandler(application *app.Application, cfg Config, log *logging.Logger) http.Handler {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = middleware.NewRateLimiter(10, 20, log)
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteErrorResponse(w, req, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteErrorResponse(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Handle("/health", h.health(cfg.Ready)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(
		middleware.NewAuthMiddleware(cfg.ServiceSecret, log, nil).Handler,
		cfg.Limiter.Handler,
		h.tenantMiddleware,
	)

	api.HandleFunc("/pnl", h.pnl).Methods(http.MethodGet)
	api.HandleFunc("/pnl/property-person", h.propertyPerson).Methods(http.MethodGet)
	api.HandleFunc("/pnl/overheads", h.overheads).Methods(http.MethodGet)
	api.HandleFunc("/pnl/computed", h.computedPnL).Methods(http.MethodGet)
	api.HandleFunc("/pnl/verify", h.verifyPnL).Methods(http.MethodGet)

	api.HandleFunc("/inbox", h.inbox).Methods(http.MethodGet)
	api.HandleFunc("/inbox/{row}", h.deleteEntry).Methods(http.MethodDelete)

	api.HandleFunc("/balances", h.saveBalance).Methods(http.MethodPost)
	api.HandleFunc("/balances/summary", h.balanceSummary).Methods(http.MethodGet)
	api.HandleFunc("/balances/latest", h.latestBalances).Methods(http.MethodGet)
	api.HandleFunc("/balances/snapshots", h.snapshots).Methods(http.MethodGet)

	api.HandleFunc("/accounts/sync", h.syncAccounts).Methods(http.MethodPost)
	api.HandleFunc("/categories", h.categories).Methods(http.MethodGet)
	api.HandleFunc("/named-ranges", h.namedRanges).Methods(http.MethodGet)

	api.HandleFunc("/workbook/health", h.workbookHealth).Methods(http.MethodGet)
	api.HandleFunc("/workbook/repair", h.repairWorkbook).Methods(http.MethodPost)

	api.HandleFunc("/reconcile", h.runReconcile).Methods(http.MethodPost)
	api.HandleFunc("/reconcile/runs", h.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/reconcile/runs/{id}", h.getRun).Methods(http.MethodGet)

	api.HandleFunc("/audit", h.auditLog).Methods(http.MethodGet)

	// mux only runs Use() middleware on matched routes; preflight requests
	// and 404s still need tracing and CORS, so these wrap the router.
	var root http.Handler = r
	root = middleware.CORS(cfg.CORSOrigins)(root)
	root = metrics.InstrumentHandler(root)
	root = middleware.Tracing(log)(root)
	return root
}

func (h *handler) health(ready func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				h.log.WithContext(ctx).WithError(err).Warn("readiness check failed")
				status["status"] = "degraded"
				httputil.WriteData(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		httputil.WriteData(w, http.StatusOK, status)
	})
}
