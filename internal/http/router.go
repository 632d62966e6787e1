package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/backendless/internal/service/auth"
	"github.com/splax/backendless/internal/service/deploy"
	"github.com/splax/backendless/internal/service/project"
	"github.com/splax/backendless/internal/ws"
)

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	handler        http.Handler
	logger         *slog.Logger
	auth           auth.Service
	project        project.Service
	deploy         deploy.Service
	hub            *ws.Hub
	upgrader       websocket.Upgrader
	limiter        RateLimiter
	metrics        *routeMetrics
	allowedOrigins []string
	checks         []HealthCheck
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitUpload    = 20
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
	maxJSONBodyBytes   = 4 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, projectSvc project.Service, deploySvc deploy.Service, hub *ws.Hub, limiter RateLimiter, allowedOrigins []string, checks ...HealthCheck) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  logger,
		auth:    authSvc,
		project: projectSvc,
		deploy:  deploySvc,
		hub:     hub,
		limiter: limiter,
		metrics: newRouteMetrics(),
		checks:  checks,

		allowedOrigins: allowedOrigins,
	}
	r.upgrader = websocket.Upgrader{CheckOrigin: r.checkWebsocketOrigin}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	r.handler = r.cors(r.mux)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/users/me", r.audit("/users/me", r.handlerAuthRate("users", rateLimitUserRead, rateWindowDefault, r.handleMe)))
	r.mux.HandleFunc("/projects", r.audit("/projects", r.handlerAuthRate("projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit("/projects/*", r.requireAuth(r.handleProjectSubroutes)))
	r.mux.HandleFunc("/ws/events", r.audit("/ws/events", r.handlerAuthRate("events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS)))
}

// handleProjectSubroutes dispatches /projects/{id}[/deployments[/{deployment_id}]].
func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/projects/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		r.notFound(w)
		return
	}
	projectID := parts[0]
	switch {
	case len(parts) == 1:
		setRoute(w, "/projects/{id}")
		r.withRateLimit("projects", rateLimitUserWrite, rateWindowDefault, rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleProject(w, req, projectID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "deployments":
		setRoute(w, "/projects/{id}/deployments")
		r.withRateLimit("deployments", rateLimitUserWrite, rateWindowDefault, rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleDeployments(w, req, projectID)
		})(w, req)
	case len(parts) == 3 && parts[1] == "deployments" && parts[2] != "":
		setRoute(w, "/projects/{id}/deployments/{deployment_id}")
		limit, route := rateLimitUserRead, "deployment"
		if req.Method == http.MethodPut {
			limit, route = rateLimitUpload, "upload"
		}
		r.withRateLimit(route, limit, rateWindowDefault, rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleDeployment(w, req, projectID, parts[2])
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any, len(r.checks))
	status := "ok"
	for _, hc := range r.checks {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := hc.Check(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			r.logger.Warn("health check failed", "component", hc.Name, "error", err)
			components[hc.Name] = map[string]any{"status": "down"}
			continue
		}
		components[hc.Name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if status != "ok" {
		writeEnvelope(w, http.StatusServiceUnavailable, envelope{Success: false, Data: payload, Reason: "dependency unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, route: route}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.observe(req.Method, recorder.route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", recorder.route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	route  string
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

// setRoute replaces the metrics label for subtree handlers.
func setRoute(w http.ResponseWriter, route string) {
	if sr, ok := w.(*statusRecorder); ok {
		sr.route = route
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
