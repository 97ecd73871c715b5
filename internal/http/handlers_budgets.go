package http

import (
	"net/http"

	"oshikakeibo/internal/core"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Budgets(r.Context())).Write(w)
}

// handleCreateBudget answers 201 for a new budget and 200 when the amount
// was merged into the active budget with the same person and period.
func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var b core.Budget
	if err := DecodeJSON(r, &b); err != nil {
		FromError(r, err).Write(w)
		return
	}
	b.ID = 0
	stored, merged, err := s.svc.AddBudget(r.Context(), b)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	NewResponse().Status(status).JSON(map[string]any{
		"budget": stored,
		"merged": merged,
	}).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if err := s.svc.DeleteBudget(r.Context(), id); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleArchivedBudgets(w http.ResponseWriter, r *http.Request) {
	personID, err := QueryInt64(r.URL.Query(), "personId", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	archived, err := s.svc.ArchivedBudgets(r.Context(), personID)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(archived).Write(w)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Events()).Write(w)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev core.CalendarEvent
	if err := DecodeJSON(r, &ev); err != nil {
		FromError(r, err).Write(w)
		return
	}
	ev.ID = 0
	stored, err := s.svc.AddEvent(r.Context(), ev)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(stored).Write(w)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if err := s.svc.DeleteEvent(r.Context(), id); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleCalendar lists birthdays and custom events of ?year=&month=,
// defaulting to the current month.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params, err := ParseMonthParams(query, s.svc.Now())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	personID, err := QueryInt64(query, "personId", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(map[string]any{
		"year":   params.Year,
		"month":  params.Month,
		"events": s.svc.Calendar(params.Year, params.Month, personID),
	}).Write(w)
}
