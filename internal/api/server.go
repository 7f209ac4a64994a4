package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/auth"
	"github.com/JakeFAU/engine-proxy/internal/config"
	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/metrics"
	"github.com/JakeFAU/engine-proxy/internal/policy/ratelimit"
	"github.com/JakeFAU/engine-proxy/internal/telemetry"
)

// NoticeHeader carries the fallback message of a search redirect.
const NoticeHeader = "X-Engine-Proxy-Notice"

// Catalog is the subset of catalog.Service the handlers need.
type Catalog interface {
	List(ctx context.Context) ([]engine.Engine, error)
	Create(ctx context.Context, p engine.Payload) (engine.Engine, error)
	Update(ctx context.Context, id int64, patch engine.Patch) (engine.Engine, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// IDGenerator produces request identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the catalog and the admin gate.
type Server struct {
	router  chi.Router
	catalog Catalog
	gate    *auth.Gate
	idGen   IDGenerator
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	catalog Catalog,
	gate *auth.Gate,
	idGen IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		gate:    gate,
		idGen:   idGen,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", s.home)
	r.Get("/search", s.search)
	r.Get("/search/*", s.search)

	r.Get("/shortcuts", s.listShortcuts)
	r.Get("/api/shortcuts", s.listShortcuts)

	trusted, err := ratelimit.ParseTrustedProxies(cfg.Auth.TrustedProxies)
	if err != nil {
		s.logger.Warn("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}
	signInLimiter := ratelimit.New(ratelimit.Config{
		Name:           "sign_in",
		RPS:            cfg.Auth.SignInRPS,
		Burst:          cfg.Auth.SignInBurst,
		TrustedProxies: trusted,
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Require)
		for _, prefix := range []string{"/api/shortcuts", "/shortcuts"} {
			r.Post(prefix, s.createShortcut)
			r.Put(prefix+"/{id}", s.updateShortcut)
			r.Delete(prefix+"/{id}", s.deleteShortcut)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/sign-in", s.signInForm)
		r.With(signInLimiter.Middleware).Post("/sign-in", s.signIn)
		r.Post("/sign-out", s.signOut)

		r.With(gate.Require).Get("/", s.adminHome)
		// Unknown admin paths are gated before they 404.
		r.NotFound(gate.Require(http.HandlerFunc(s.notFound)).ServeHTTP)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "Not found")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps catalog errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeErrorFields(w, http.StatusBadRequest, "Validation failed", verr.Fields)
	case errors.Is(err, engine.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Shortcut not found")
	case errors.Is(err, engine.ErrConflict):
		s.writeError(w, http.StatusConflict, "Shortcut already exists")
	case errors.Is(err, engine.ErrRetryable):
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, "The catalog changed concurrently. Try again.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := s.idGen.NewID()
		if err != nil {
			s.logger.Warn("request id generation failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		}
		if traceID := telemetry.TraceID(r.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		s.logger.Info("request completed", fields...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, map[string]any{"data": data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeErrorFields(w, status, msg, nil)
}

func (s *Server) writeErrorFields(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	s.writeJSON(w, status, map[string]errorBody{"error": {Message: msg, Fields: fields}})
}
