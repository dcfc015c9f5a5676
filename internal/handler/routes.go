package handler

import "net/http"

// Routes registers the operational endpoints. metrics serves the Prometheus
// scrape.
func Routes(health *HealthHandler, workers *WorkersHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /workers", workers.Get)
	mux.HandleFunc("PUT /workers/consumer", workers.SetConsumer)
	mux.HandleFunc("PUT /workers/scheduler", workers.SetScheduler)
	return mux
}
