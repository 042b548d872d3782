// Package http exposes the ledger over a JSON API and serves the bundled
// single-page frontend.
package http

import (
	"context"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"whopays/internal/cache"
	"whopays/internal/core"
	"whopays/internal/log"
	"whopays/internal/middleware/ratelimit"
	"whopays/internal/middleware/security"
	"whopays/internal/middleware/trace"
	"whopays/internal/services"
	appweb "whopays/web"
)

// Ledger is the part of services.LedgerService the transport needs.
type Ledger interface {
	GetState(ctx context.Context) (core.State, error)
	PreviewNext(ctx context.Context, people []string, tie string) (core.NextPayer, error)
	RunRound(ctx context.Context, people []string, tie string) (core.RoundResult, error)
	SetPrice(ctx context.Context, name string, price any) (services.PriceUpdate, error)
	RemovePerson(ctx context.Context, name string) (bool, core.State, error)
	ResetBalances(ctx context.Context, clearHistory bool) (core.State, error)
	ClearHistory(ctx context.Context) error
}

var _ Ledger = (*services.LedgerService)(nil)

// Options tune the server. Zero values fall back to the defaults used by
// config.Load.
type Options struct {
	CORSOrigins    []string
	RateLimitRPM   int
	RateLimitBurst int
	StateCacheTTL  time.Duration
	// Ready reports backend readiness for /readyz.
	Ready func(ctx context.Context) error
	// Static holds the frontend; nil uses the embedded build.
	Static fs.FS
	Logger *log.Logger
}

const stateCacheKey = "state"

type Server struct {
	http.Server
	ledger     Ledger
	stateCache *cache.TTLCache[[]byte]
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	ready      func(ctx context.Context) error
	static     fs.FS
	logger     *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	static := opts.Static
	if static == nil {
		sub, err := fs.Sub(appweb.StaticFS, "static")
		if err != nil {
			logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
		}
		static = sub
	}

	s := &Server{
		ledger:     ledger,
		stateCache: cache.NewTTLCache[[]byte](opts.StateCacheTTL),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitRPM,
			Burst:             opts.RateLimitBurst,
		}),
		ready:  opts.Ready,
		static: static,
		logger: logger,
	}
	s.tracer = trace.NewMiddleware(clientIP, logger.WithComponent(log.ComponentTrace))

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api := router.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	api.Use(security.NoStore)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/next", s.handleNext).Methods(http.MethodGet)

	// Writes are rate limited and drop the cached state.
	write := s.writeChain()
	api.Handle("/run", write(s.handleRun)).Methods(http.MethodPost)
	api.Handle("/set-price", write(s.handleSetPrice)).Methods(http.MethodPost)
	api.Handle("/remove-person", write(s.handleRemovePerson)).Methods(http.MethodPost)
	api.Handle("/reset-balances", write(s.handleResetBalances)).Methods(http.MethodPost)
	api.Handle("/clear-history", write(s.handleClearHistory)).Methods(http.MethodPost)
	api.Handle("/users/{name}/price", write(s.handlePutUserPrice)).Methods(http.MethodPut)
	api.Handle("/users/{name}", write(s.handleDeleteUser)).Methods(http.MethodDelete)
	api.Handle("/balances", write(s.handleResetBalances)).Methods(http.MethodPut)
	api.Handle("/history", write(s.handleDeleteHistory)).Methods(http.MethodDelete)

	router.PathPrefix("/").
		MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool { return !isAPIPath(r.URL.Path) }).
		Methods(http.MethodGet, http.MethodHead).
		HandlerFunc(s.handleSPA)

	apiCORS := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader, "Retry-After"},
	}).Handler(router)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIPath(r.URL.Path) {
			apiCORS.ServeHTTP(w, r)
			return
		}
		router.ServeHTTP(w, r)
	})
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// writeChain wraps a mutating handler in the rate limiter and state
// invalidation.
func (s *Server) writeChain() func(http.HandlerFunc) http.Handler {
	limit := s.limiter.Middleware(clientIP, handleRateLimited)
	return func(h http.HandlerFunc) http.Handler {
		return limit(s.invalidateStateAfter(h))
	}
}

// invalidateStateAfter drops the cached state once a mutating handler
// returns, whether or not it succeeded.
func (s *Server) invalidateStateAfter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer s.stateCache.Flush()
		next.ServeHTTP(w, r)
	})
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}
