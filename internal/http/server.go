package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "oshikakeibo/internal/log"
	"oshikakeibo/internal/metrics"
	"oshikakeibo/internal/services"
)

// Server is the JSON API over a LedgerService.
type Server struct {
	http.Server
	svc     *services.LedgerService
	limiter *rateLimiter
	started time.Time

	shutdownOnce sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithRateLimit caps mutating requests per client and minute. Zero disables it.
func WithRateLimit(requestsPerMinute int) Option {
	return func(s *Server) {
		if requestsPerMinute <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = newRateLimiter(requestsPerMinute, nil)
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, logger *applog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		svc:     svc,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes(mux)

	mws := []func(http.Handler) http.Handler{
		withRequestID,
		applog.Middleware(logger.WithComponent(applog.ComponentHTTP)),
		applog.RequestIDMiddleware(func(r *http.Request) string { return RequestID(r.Context()) }),
		withAccessLog,
		withSecurityHeaders,
	}
	if s.limiter != nil {
		mws = append(mws, s.limiter.middleware)
		go s.limiter.startCleanup(5 * time.Minute)
	}
	s.Handler = chain(mux, mws...)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}

	handle("GET /healthz", s.handleHealth)
	handle("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	handle("GET /api/categories", s.handleCategories)
	handle("GET /api/genres", s.handleGenres)

	handle("GET /api/people", s.handleListPeople)
	handle("POST /api/people", s.handleCreatePerson)
	handle("GET /api/people/{id}", s.handleGetPerson)
	handle("PATCH /api/people/{id}", s.handleUpdatePerson)
	handle("DELETE /api/people/{id}", s.handleDeletePerson)
	handle("GET /api/people/{id}/summary", s.handlePersonSummary)

	handle("GET /api/expenses", s.handleListExpenses)
	handle("POST /api/expenses", s.handleCreateExpense)
	handle("GET /api/expenses/{id}", s.handleGetExpense)
	handle("PUT /api/expenses/{id}", s.handleUpdateExpense)
	handle("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	handle("GET /api/budgets", s.handleListBudgets)
	handle("POST /api/budgets", s.handleCreateBudget)
	handle("DELETE /api/budgets/{id}", s.handleDeleteBudget)
	handle("GET /api/budgets/archived", s.handleArchivedBudgets)

	handle("GET /api/events", s.handleListEvents)
	handle("POST /api/events", s.handleCreateEvent)
	handle("DELETE /api/events/{id}", s.handleDeleteEvent)
	handle("GET /api/calendar", s.handleCalendar)

	handle("GET /api/dashboard", s.handleDashboard)
	handle("GET /api/analytics", s.handleAnalytics)
	handle("GET /api/notifications", s.handleNotifications)
	handle("POST /api/notifications/refresh", s.handleRefreshNotifications)
	handle("GET /api/settings", s.handleGetSettings)
	handle("PUT /api/settings", s.handleUpdateSettings)

	handle("POST /api/import/csv", s.handleImportCSV)
	handle("GET /api/export/json", s.handleExportJSON)
	handle("GET /api/export/xlsx", s.handleExportXLSX)
	handle("GET /api/export/csv", s.handleExportCSV)
	handle("POST /api/restore", s.handleRestore)

	handle("GET /api/snapshots", s.handleListSnapshots)
	handle("POST /api/snapshots", s.handleCreateSnapshot)
	handle("POST /api/snapshots/{id}/restore", s.handleRestoreSnapshot)

	handle("POST /api/mirror/sync", s.handleMirrorSync)
	handle("POST /api/maintenance", s.handleMaintenance)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
