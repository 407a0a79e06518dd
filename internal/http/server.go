// Package http serves the expense API: the live collection, creation with
// offline fallback, monthly summaries, CSV export, and a small
// server-rendered page over the same data.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"golang.org/x/text/language"

	"spendlog/internal/cache"
	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/middleware/ratelimit"
	"spendlog/internal/middleware/security"
	"spendlog/internal/middleware/trace"
	appweb "spendlog/web"
)

// ExpenseSource is the read/write surface the handlers work against.
// Satisfied by *mirror.Mirror.
type ExpenseSource interface {
	Snapshot() []core.Expense
	Loading() bool
	Err() error
	Generation() uint64
	Create(ctx context.Context, cand core.Candidate) (core.Expense, error)
}

// Enqueuer buffers candidates while the remote store is unreachable.
// Satisfied by *offline.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, cand core.Candidate) core.Expense
	Depth(ctx context.Context) int
}

type Server struct {
	http.Server
	logger        *log.Logger
	templates     *template.Template
	expenses      ExpenseSource
	queue         Enqueuer
	defaultLocale language.Tag

	rateLimiter *ratelimit.Limiter

	// Rendered summary responses, keyed by collection generation and
	// locale so a change in either recomputes.
	summaryCache *cache.LRUCache[[]byte]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware, and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, expenses ExpenseSource, queue Enqueuer, defaultLocale language.Tag, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()

	s := &Server{
		logger:        logger,
		expenses:      expenses,
		queue:         queue,
		defaultLocale: defaultLocale,
		rateLimiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaryCache:  cache.NewLRUCache[[]byte](64, 5*time.Minute),
		cacheManager:  cache.NewManager(logger),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	limited := s.rateLimiter.Middleware(clientIP, nil)

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/expenses", limited(http.HandlerFunc(s.handleExpenses)))
	mux.HandleFunc("/expenses/summary", s.handleSummary)
	mux.HandleFunc("/expenses/export", s.handleExport)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, clientIP)

	s.Server = http.Server{
		Addr:    addr,
		Handler: tracer.Middleware(headers.Middleware(mux)),
	}

	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the first fetch attempt has settled, so a
// load balancer does not route to a mirror that has no data yet.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.expenses.Loading() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
