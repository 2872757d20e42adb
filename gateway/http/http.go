// Package http exposes the analytics engine over HTTP: ingestion and query
// endpoints, the Prometheus exposition endpoint, and a health probe.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/component"
	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/ingest"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/query"
)

// Config holds the HTTP gateway settings.
type Config struct {
	Addr            string        `json:"addr"`
	MaxRequestSize  int64         `json:"maxRequestSize"`
	EnableCORS      bool          `json:"enableCORS"`
	CORSOrigins     []string      `json:"corsOrigins"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.MissingField("addr")
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = 1 << 20 // 1MB
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return nil
}

// getOrGenerateRequestID extracts the request ID from headers or generates a
// new one so log lines can be correlated across the gateway and the stores.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Gateway is the HTTP front of the engine.
type Gateway struct {
	config   Config
	ingestor *ingest.Ingestor
	querier  *query.Service
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	logger   *slog.Logger
	healthy  func() bool

	running  atomic.Bool
	server   *http.Server
	serveErr chan error
}

// NewGateway creates the HTTP gateway.
func NewGateway(cfg Config, deps component.Dependencies, ingestor *ingest.Ingestor, querier *query.Service, healthy func() bool) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Gateway", "NewGateway", "validate config")
	}
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Gateway{
		config:   cfg,
		ingestor: ingestor,
		querier:  querier,
		registry: deps.MetricsRegistry,
		metrics:  deps.GetMetrics(),
		logger:   deps.GetLoggerWithComponent("http-gateway"),
		healthy:  healthy,
		serveErr: make(chan error, 1),
	}, nil
}

// Name implements component.LifecycleComponent.
func (g *Gateway) Name() string { return "http-gateway" }

// Initialize builds the route table and server.
func (g *Gateway) Initialize(_ context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/analytics/track-view", g.route(http.MethodPost, g.handleTrackView))
	mux.HandleFunc("/api/analytics/track-engagement", g.route(http.MethodPost, g.handleTrackEngagement))
	mux.HandleFunc("/api/analytics/cache-data", g.route(http.MethodPost, g.handleCacheData))
	mux.HandleFunc("/api/analytics/get-analytics", g.route(http.MethodGet, g.handleGetAnalytics))
	mux.HandleFunc("/api/analytics/get-trending", g.route(http.MethodGet, g.handleGetTrending))
	mux.HandleFunc("/api/analytics/get-cached-data", g.route(http.MethodGet, g.handleGetCachedData))
	// Any method: an unknown operation is a 400 regardless of how it is
	// requested, so the method check must not answer first.
	mux.HandleFunc("/api/analytics/", g.route(anyMethod, g.handleUnknownOperation))
	mux.HandleFunc("/healthz", g.route(http.MethodGet, g.handleHealth))
	if g.registry != nil {
		mux.Handle("/metrics", g.registry.Handler())
	}

	g.server = &http.Server{
		Addr:         g.config.Addr,
		Handler:      mux,
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}
	return nil
}

// Start begins serving. The listener error, if any, surfaces through Stop or
// the process supervisor reading ServeErr.
func (g *Gateway) Start(_ context.Context) error {
	if g.server == nil {
		return errors.ErrNotStarted
	}
	if !g.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}

	go func() {
		g.logger.Info("http gateway listening", "addr", g.config.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.serveErr <- err
		}
		close(g.serveErr)
	}()
	return nil
}

// ServeErr reports a fatal listener error. The channel closes when the
// server exits.
func (g *Gateway) ServeErr() <-chan error { return g.serveErr }

// Stop drains in-flight requests within the timeout.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "Gateway", "Stop", "shutdown")
	}
	g.logger.Info("http gateway stopped")
	return nil
}

// Handler returns the configured mux, for tests exercising routes without a
// listener.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler
}

// anyMethod disables the method filter in route.
const anyMethod = ""

// route wraps a handler with method filtering, request ID propagation,
// request size limiting, CORS, and panic containment.
func (g *Gateway) route(method string, handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("handler panic", "requestId", requestID, "panic", rec)
				g.writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()

		if g.config.EnableCORS {
			g.applyCORS(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if method != anyMethod && r.Method != method {
			g.writeError(w, r, http.StatusMethodNotAllowed,
				fmt.Sprintf("method %s not allowed", r.Method))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize)
		defer r.Body.Close()

		handler(w, r)
	}
}

func (g *Gateway) handleTrackView(w http.ResponseWriter, r *http.Request) {
	var req ingest.ViewRequest
	if !g.decodeBody(w, r, &req) {
		return
	}

	ack, err := g.ingestor.TrackView(r.Context(), req)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, r, http.StatusOK, ack)
}

func (g *Gateway) handleTrackEngagement(w http.ResponseWriter, r *http.Request) {
	var req ingest.EngagementRequest
	if !g.decodeBody(w, r, &req) {
		return
	}

	ack, err := g.ingestor.TrackEngagement(r.Context(), req)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, r, http.StatusOK, ack)
}

func (g *Gateway) handleCacheData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key        string          `json:"key"`
		Value      json.RawMessage `json:"value"`
		TTLSeconds int             `json:"ttlSeconds"`
	}
	if !g.decodeBody(w, r, &req) {
		return
	}

	if err := g.querier.CacheData(req.Key, req.Value, req.TTLSeconds); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, r, http.StatusOK, map[string]string{"status": "cached", "key": req.Key})
}

func (g *Gateway) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := analytics.ParsePeriod(q.Get("period"))
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := g.querier.Analytics(r.Context(), q.Get("entityType"), q.Get("entityId"), period)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, r, http.StatusOK, resp)
}

func (g *Gateway) handleGetTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := analytics.ParsePeriod(q.Get("period"))
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	limit := 10
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			g.writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	entries, err := g.querier.Trending(r.Context(), q.Get("entityType"), limit, period)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []analytics.TrendingEntry{}
	}
	g.writeJSON(w, r, http.StatusOK, map[string]any{
		"entityType": q.Get("entityType"),
		"trending":   entries,
	})
}

func (g *Gateway) handleGetCachedData(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	item, found, err := g.querier.Cached(key)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	if !found {
		g.writeError(w, r, http.StatusNotFound, "cached data not found")
		return
	}
	g.writeJSON(w, r, http.StatusOK, item)
}

func (g *Gateway) handleUnknownOperation(w http.ResponseWriter, r *http.Request) {
	g.writeError(w, r, http.StatusBadRequest, "unknown operation")
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !g.healthy() {
		g.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	g.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads and parses a JSON request body, writing the 400 itself
// on failure.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(body) == 0 {
		g.writeError(w, r, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		g.writeError(w, r, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// writeServiceError maps a classified error to its status code. Internal
// detail never leaks: only validation and not-found messages pass through.
func (g *Gateway) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.IsInvalid(err):
		g.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.IsNotFound(err):
		g.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.IsTransient(err):
		g.logger.Warn("request failed transiently", "error", err)
		g.writeError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		g.logger.Error("request failed", "error", err)
		g.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	g.writeJSON(w, r, status, map[string]string{
		"error": message,
		"code":  errorCode(status),
	})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusServiceUnavailable:
		return "transient_error"
	default:
		return "internal_error"
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	g.metrics.HTTPRequests.WithLabelValues(routeLabel(r), strconv.Itoa(status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("response write failed", "error", err)
	}
}

func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// routeLabel collapses the path to its last segment so metric cardinality
// stays bounded.
func routeLabel(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
