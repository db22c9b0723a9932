// Package http exposes the ledger service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

// Server wires the service layer to HTTP routes, with per-IP rate limiting
// on writes and a read-through cache for ledger lookups.
type Server struct {
	http.Server

	ledgers      *services.LedgerService
	transactions *services.TransactionService
	tags         *services.TagService
	invites      *services.InviteService

	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	ledgerCache  *cache.LRUCache[core.Ledger]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Options carries the tunables NewServer accepts beyond its dependencies.
type Options struct {
	CacheTTL          time.Duration
	RequestsPerMinute int
	Logger            *applog.Logger
}

func NewServer(addr string, ledgers *services.LedgerService, transactions *services.TransactionService, tags *services.TagService, invites *services.InviteService, opts Options) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	s := &Server{
		ledgers:      ledgers,
		transactions: transactions,
		tags:         tags,
		invites:      invites,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
		tracer:       trace.NewMiddleware(clientIP),
		ledgerCache:  cache.NewLRUCache[core.Ledger](100, opts.CacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.ledgerCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /ledgers", s.handleCreateLedger)
	mux.HandleFunc("GET /ledgers/{id}", s.handleGetLedger)
	mux.HandleFunc("PATCH /ledgers/{id}", s.handleUpdateLedger)
	mux.HandleFunc("DELETE /ledgers/{id}", s.handleDeleteLedger)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PATCH /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /tags", s.handleCreateTag)
	mux.HandleFunc("GET /tags", s.handleListTags)
	mux.HandleFunc("GET /tags/{id}", s.handleGetTag)
	mux.HandleFunc("PATCH /tags/{id}", s.handleUpdateTag)
	mux.HandleFunc("DELETE /tags/{id}", s.handleDeleteTag)

	mux.HandleFunc("POST /invites", s.handleCreateInvite)
	mux.HandleFunc("GET /invites", s.handleListInvites)
	mux.HandleFunc("POST /invites/{id}/accept", s.handleResolveInvite(true))
	mux.HandleFunc("POST /invites/{id}/reject", s.handleResolveInvite(false))

	// Outermost-in: the context logger, then the tracer (which logs through
	// it and generates the request id), then the id-stamped logger the
	// handlers see, then the guards.
	limited := s.rateLimiter.Middleware(clientIP, nil)
	inner := securityHeaders(limitWrites(limited, mux))
	withRequestID := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	handler := applog.Middleware(opts.Logger)(s.tracer.Middleware(withRequestID(inner)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// limitWrites applies the rate limit middleware to mutating methods only.
func limitWrites(limited func(http.Handler) http.Handler, next http.Handler) http.Handler {
	guarded := limited(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
			guarded.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller's address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// Shutdown stops background routines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// cachedLedger reads a ledger through the cache.
func (s *Server) cachedLedger(ctx context.Context, id string) (core.Ledger, error) {
	if l, ok := s.ledgerCache.Get(id); ok {
		return l, nil
	}
	l, err := s.ledgers.Get(ctx, id)
	if err != nil {
		return core.Ledger{}, err
	}
	s.ledgerCache.Set(id, l)
	return l, nil
}

// invalidateLedger drops the cached entry after any write that touches the
// ledger row, including totals adjustments.
func (s *Server) invalidateLedger(id string) {
	s.ledgerCache.Delete(id)
}
