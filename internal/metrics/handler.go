package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// Handler serves every registered collector. A failing collector is
// reported in the scrape instead of failing it.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RegisterHandlers mounts /metrics and a /health probe. check may be nil.
func RegisterHandlers(mux *http.ServeMux, check HealthFunc) {
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler(check))
}

func healthHandler(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		body := map[string]string{}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
				body["error"] = err.Error()
			}
		}
		body["status"] = status
		body["timestamp"] = time.Now().UTC().Format(time.RFC3339)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
