// Package api exposes the marker-merge engine over HTTP: a small,
// dependency-light JSON API suitable for embedding in a larger service or
// running standalone via cmd/server.
package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ServerConfig controls the HTTP server's listening address and the
// middleware chain's limits.
type ServerConfig struct {
	Addr string

	// MaxConcurrentRequests bounds how many requests are processed at
	// once; excess requests receive 503 rather than queuing unbounded.
	MaxConcurrentRequests int

	// RequestTimeout bounds how long a single request's handler may run.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests to finish before forcing close.
	ShutdownTimeout time.Duration

	// APIKey, if non-empty, is required via the X-Api-Key header on every
	// request except /healthz.
	APIKey string

	// AllowedOrigins lists origins permitted to make cross-origin
	// requests; "*" permits any origin.
	AllowedOrigins []string
}

// DefaultConfig returns a ServerConfig with conservative defaults, bound
// to addr.
func DefaultConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:                  addr,
		MaxConcurrentRequests: 64,
		RequestTimeout:        10 * time.Second,
		ShutdownTimeout:       15 * time.Second,
		AllowedOrigins:        []string{"*"},
	}
}

// NewServer builds an *http.Server wrapping handlers' routes in the
// standard middleware chain (security headers, CORS, concurrency limiter,
// panic recovery, per-request timeout, access logging).
func NewServer(cfg ServerConfig, h *Handlers) *http.Server {
	mux := http.NewServeMux()
	h.Register(mux)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      withMiddleware(cfg, mux),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe runs srv until the process receives SIGINT or SIGTERM,
// then drains in-flight requests within cfg.ShutdownTimeout before
// returning.
func ListenAndServe(ctx context.Context, srv *http.Server, cfg ServerConfig) error {
	srv.Addr = cfg.Addr

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		log.Printf("api: shutdown signal received, draining")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// withMiddleware wraps next in the standard chain, innermost-first:
// logging(timeout(recovery(limiter(cors(securityHeaders(apiKey(next)))))))
func withMiddleware(cfg ServerConfig, next http.Handler) http.Handler {
	h := next
	h = withAPIKey(cfg.APIKey, h)
	h = withSecurityHeaders(h)
	h = withCORS(cfg.AllowedOrigins, h)
	h = withConcurrencyLimit(cfg.MaxConcurrentRequests, h)
	h = withRecovery(h)
	h = withTimeout(cfg.RequestTimeout, h)
	h = withAccessLog(h)
	return h
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func withCORS(allowed []string, next http.Handler) http.Handler {
	allowAny := false
	for _, o := range allowed {
		if o == "*" {
			allowAny = true
		}
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowedSet[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAny || allowedSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withConcurrencyLimit bounds the number of requests processed
// concurrently using a buffered channel as a semaphore.
func withConcurrencyLimit(max int, next http.Handler) http.Handler {
	if max <= 0 {
		return next
	}
	sem := make(chan struct{}, max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusServiceUnavailable, "server is at capacity, try again shortly")
		}
	})
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("api: panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
}

func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Printf("api: %s %s %d %s", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func withAPIKey(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
