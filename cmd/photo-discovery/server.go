package main

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"photo-discovery/internal/config"
	"photo-discovery/internal/logging"
	"photo-discovery/internal/memory"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	MemoryBand   string  `json:"memoryBand"`
	MemoryUsed   float64 `json:"memoryUsed"`
	SessionRoot  string  `json:"sessionRoot,omitempty"`
	Generation   uint64  `json:"generation,omitempty"`
	CachedItems  int     `json:"cachedItems"`
	GoVersion    string  `json:"goVersion"`
	NumGoroutine int     `json:"numGoroutine"`
}

func newServer(addr string, a *app) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newRouter(a *app) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", a.healthCheck).Methods("GET")
	r.HandleFunc("/livez", livenessCheck).Methods("GET", "HEAD")
	r.Use(logRequests)
	return r
}

// healthCheck reports degraded, still with 200, while memory is critical.
func (a *app) healthCheck(w http.ResponseWriter, _ *http.Request) {
	status := a.monitor.Status()
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      config.Version,
		MemoryBand:   status.Band.String(),
		MemoryUsed:   status.UsedFraction,
		CachedItems:  a.thumbnails.Len() + a.metadata.Len() + a.validation.Len(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if status.Band == memory.BandCritical {
		response.Status = statusDegraded
	}
	if h, ok := a.session.Current(); ok {
		response.SessionRoot = h.Root
		response.Generation = h.Generation
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

func livenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs each request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
