package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/taskboard/internal/ratelimit"
	"github.com/splax/taskboard/internal/service/auth"
	"github.com/splax/taskboard/internal/service/task"
	"github.com/splax/taskboard/internal/ws"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	tasks    task.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  ratelimit.Limiter
	metrics  *metrics
	gatherer prometheus.Gatherer
	dbHealth func(context.Context) error
}

// Options carries the optional collaborators of a Router.
type Options struct {
	Hub            *ws.Hub
	Limiter        ratelimit.Limiter
	Registry       *prometheus.Registry
	DBHealth       func(context.Context) error
	AllowedOrigins []string
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, taskSvc task.Service, opts Options) *Router {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		tasks:    taskSvc,
		hub:      opts.Hub,
		limiter:  opts.Limiter,
		metrics:  newMetrics(registry),
		gatherer: registry,
		dbHealth: opts.DBHealth,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
	if r.limiter == nil {
		r.limiter = ratelimit.NewMemory()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("signup", fixedRule(rateLimitSignup, rateWindowDefault), r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("login", fixedRule(rateLimitLogin, rateWindowDefault), r.handleLogin)))
	r.mux.HandleFunc("/auth/me", r.audit("/auth/me", r.protected("me", r.handleMe)))
	r.mux.HandleFunc("/tasks", r.audit("/tasks", r.protected("tasks", r.handleTasks)))
	r.mux.HandleFunc("/tasks/", r.audit("/tasks/:id", r.protected("tasks", r.handleTask)))
	r.mux.HandleFunc("/ws/tasks", r.audit("/ws/tasks", r.withRateLimit("client", clientIPRule, r.handleTasksWS)))
}

// protected bounds the caller's address before authentication and the
// principal's read or write budget after it.
func (r *Router) protected(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.withRateLimit("client", clientIPRule, r.requireAuth(r.withRateLimit(route, readWriteRule, next)))
}

type credentialsPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !decodeJSON(w, req, &payload) {
		return
	}
	user, token, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":      user.Principal(),
		"token":     token.Value,
		"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if !decodeJSON(w, req, &payload) {
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user.Principal(),
		"token":     token.Value,
		"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p})
}

// handleTasksWS streams the caller's task events. Browsers cannot set
// headers on websocket upgrades, so an access_token query parameter is
// accepted as an alternative to the Authorization header.
func (r *Router) handleTasksWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "task feed disabled")
		return
	}
	header := req.Header.Get("Authorization")
	if header == "" {
		if token := strings.TrimSpace(req.URL.Query().Get("access_token")); token != "" {
			header = "Bearer " + token
		}
	}
	ctx, ok := r.ensureAuth(w, req, header)
	if !ok {
		return
	}
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(ctx)
	}
	req = req.WithContext(ctx)
	p, _ := principalFromContext(ctx)

	decision := r.limiter.Allow("ws|user:"+p.ID, rateLimitWebsocket, rateWindowRealtime)
	applyRateHeaders(w, rateLimitWebsocket, decision)
	if !decision.Allowed {
		r.metrics.rateLimited("ws")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(p.ID, client)
	go func() {
		defer func() {
			r.hub.Unregister(p.ID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("database health check failed", "error", err)
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeJSON reads a bounded JSON body, writing 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
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
		r.metrics.observeRequest(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
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
		if p, ok := principalFromContext(ctx); ok {
			fields = append(fields, "user_id", p.ID)
		}

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

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin = strings.TrimSpace(origin); origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(req *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		_, ok := set[strings.ToLower(req.Header.Get("Origin"))]
		return ok
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
