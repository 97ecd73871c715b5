package http

import (
	"net/http"

	"oshikakeibo/internal/core"
)

// handleListExpenses lists expenses in insertion order, optionally only
// those of ?personId=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	personID, err := QueryInt64(r.URL.Query(), "personId", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	all := s.svc.Expenses()
	if personID == 0 {
		NewResponse().JSON(all).Write(w)
		return
	}
	filtered := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if e.PersonID == personID {
			filtered = append(filtered, e)
		}
	}
	NewResponse().JSON(filtered).Write(w)
}

// handleCreateExpense stores one expense. A missing date means today.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var e core.Expense
	if err := DecodeJSON(r, &e); err != nil {
		FromError(r, err).Write(w)
		return
	}
	e.ID = 0
	created, err := s.svc.AddExpense(r.Context(), e)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(created).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	e, err := s.svc.Expense(id)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	var e core.Expense
	if err := DecodeJSON(r, &e); err != nil {
		FromError(r, err).Write(w)
		return
	}
	updated, err := s.svc.UpdateExpense(r.Context(), id, e)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(updated).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), id); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
