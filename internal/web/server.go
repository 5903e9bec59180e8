// Package web provides the HTTP shell of the import wizard: a JSON API
// that drives one wizard session per client.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/importwizard/internal/config"
	"github.com/JonMunkholm/importwizard/internal/core"
	"github.com/JonMunkholm/importwizard/internal/wizard"
	mw "github.com/JonMunkholm/importwizard/internal/web/middleware"
)

// Backend is the import service as the HTTP shell uses it.
// *client.Client satisfies it.
type Backend interface {
	wizard.Backend
	DownloadExport(ctx context.Context, filename string, w io.Writer) (int64, error)
	Job(ctx context.Context, jobID core.JobID) (*core.JobStatus, error)
	Health(ctx context.Context) error
}

// Server is the HTTP server for the import wizard.
type Server struct {
	backend Backend
	store   *SessionStore
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	limits  []*rateLimiter
}

// NewServer creates a Server with its own session store.
func NewServer(backend Backend, cfg *config.Config) *Server {
	s := &Server{
		backend: backend,
		store:   NewSessionStore(backend, cfg.Session.TTL, cfg.Session.MaxSessions),
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.With(mw.APIKeyAuth(&s.cfg.Security)).Get("/exports/{filename}", s.handleExport)

	// Heavy routes get a tighter per-IP budget.
	heavy := func(h http.HandlerFunc) http.Handler { return h }
	if s.cfg.Rate.Enabled {
		rl := s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute)
		heavy = func(h http.HandlerFunc) http.Handler { return rl.middleware(h) }
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.withSession)

			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)

			// Navigation
			r.Method(http.MethodPost, "/upload", heavy(s.handleUpload))
			r.Post("/sheet", s.handleSelectSheet)
			r.Post("/next", s.handleNext)
			r.Post("/back", s.handleBack)
			r.Post("/reset", s.handleReset)

			// Mapping
			r.Get("/catalog", s.handleCatalog)
			r.Put("/mapping", s.handleSetMapping)
			r.Post("/mapping/template", s.handleApplyTemplate)
			r.Post("/mapping/suggest", s.handleSuggest)
			r.Post("/templates", s.handleSaveTemplate)

			// Result
			r.Method(http.MethodPost, "/submit", heavy(s.handleSubmit))
			r.Get("/report", s.handleReport)
			r.Get("/job", s.handleJob)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// RunJanitor removes idle sessions until ctx is done.
func (s *Server) RunJanitor(ctx context.Context) {
	s.store.RunJanitor(ctx, s.cfg.Session.JanitorInterval)
}

// Shutdown gracefully stops the server and its background sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limits {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Store returns the session store.
func (s *Server) Store() *SessionStore {
	return s.store
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// JSON only; nothing should ever load from these responses.
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a fixed-window limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a limiter and registers it for shutdown.
func (s *Server) newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := newRateLimiter(rate, window)
	s.limits = append(s.limits, rl)
	go rl.cleanup()
	return rl
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// cleanup removes stale visitor entries every window until stopped.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by client IP.
// TrustedRealIP has already rewritten RemoteAddr for proxied requests.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(mw.ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeJSONStatus(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   http.StatusText(http.StatusTooManyRequests),
				Message: "Too many requests",
				Action:  "Wait a minute and try again",
				Code:    "REQ002",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
