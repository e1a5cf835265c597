package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/wonny/bankstar/internal/api/handlers"
	"github.com/wonny/bankstar/pkg/logger"
)

// Handlers bundles the endpoint handlers the router mounts
type Handlers struct {
	Events    *handlers.EventsHandler
	Warehouse *handlers.WarehouseHandler
	Source    *handlers.SourceHandler
	Stream    *handlers.StreamHandler
}

// HealthFunc reports whether the warehouse database is reachable
type HealthFunc func(ctx context.Context) error

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, health HealthFunc, limiter Limiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(health)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(rateLimitMiddleware(limiter, log))

	// Event log
	api.HandleFunc("/events", h.Events.List).Methods("GET")
	api.HandleFunc("/events/summary", h.Events.Summary).Methods("GET")

	// Star schema reads
	api.HandleFunc("/facts/{domain}", h.Warehouse.GetFacts).Methods("GET")
	api.HandleFunc("/companies/{ticker}", h.Warehouse.GetCompany).Methods("GET")
	api.HandleFunc("/dates/coverage", h.Warehouse.GetDateCoverage).Methods("GET")

	// Raw writes
	api.HandleFunc("/source/{table}", h.Source.Write).Methods("POST")
	api.HandleFunc("/bindings", h.Source.GetBindings).Methods("GET")

	// Live event feed
	r.HandleFunc("/ws/events", h.Stream.Events).Methods("GET")

	// Apply middleware
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		body := map[string]interface{}{
			"service": "bankstar-warehouse",
		}

		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
				body["database"] = err.Error()
			}
		}
		body["status"] = status

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
