package http

import (
	"fmt"
	"net/http"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/notify"
)

// maxMonthsBack bounds the analytics trend window.
const maxMonthsBack = 24

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Dashboard(r.Context())).Write(w)
}

// handleAnalytics serves the analytics screen for ?personId= (everyone when
// absent) over the last ?months= months.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	personID, err := QueryInt64(query, "personId", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	months, err := QueryInt64(query, "months", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if months > maxMonthsBack {
		FromError(r, fmt.Errorf("%w: months must be at most %d", core.ErrValidation, maxMonthsBack)).Write(w)
		return
	}
	a, err := s.svc.Analytics(personID, int(months))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(a).Write(w)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Notifications(r.Context())).Write(w)
}

// handleRefreshNotifications recomputes the feed and returns the
// notifications that were not present before.
func (s *Server) handleRefreshNotifications(w http.ResponseWriter, r *http.Request) {
	added := s.svc.Refresh(r.Context())
	if added == nil {
		added = []notify.Notification{}
	}
	NewResponse().JSON(map[string]any{
		"added":         added,
		"notifications": s.svc.Notifications(r.Context()),
	}).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Settings()).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings notify.Settings
	if err := DecodeJSON(r, &settings); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(s.svc.UpdateSettings(r.Context(), settings)).Write(w)
}
