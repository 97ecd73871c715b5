package http

import (
	"context"
	"net/http"
	"time"

	"oshikakeibo/internal/core"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats := s.svc.CacheStats()
	body := map[string]any{
		"status": "ready",
		"cache": map[string]any{
			"hits":   stats.Hits,
			"misses": stats.Misses,
			"size":   stats.Size,
		},
	}
	if err := s.svc.Ready(ctx); err != nil {
		body["status"] = "not_ready"
		body["error"] = err.Error()
		NewResponse().Status(http.StatusServiceUnavailable).JSON(body).Write(w)
		return
	}
	NewResponse().JSON(body).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"categories": core.Categories(),
		"fallback":   core.FallbackCategory,
	}).Write(w)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"genres": core.Genres(),
		"colors": core.DefaultColors,
		"icons":  core.DefaultIcons,
	}).Write(w)
}
