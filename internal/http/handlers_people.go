package http

import (
	"net/http"

	"oshikakeibo/internal/core"
)

func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.People()).Write(w)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var p core.Person
	if err := DecodeJSON(r, &p); err != nil {
		FromError(r, err).Write(w)
		return
	}
	p.ID = 0
	created, err := s.svc.AddPerson(r.Context(), p)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(created).Write(w)
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	p, err := s.svc.Person(id)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(p).Write(w)
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	var patch core.PersonPatch
	if err := DecodeJSON(r, &patch); err != nil {
		FromError(r, err).Write(w)
		return
	}
	p, err := s.svc.UpdatePerson(r.Context(), id, patch)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(p).Write(w)
}

// handleDeletePerson removes the person together with everything that
// belongs to them and reports what went.
func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	removed, err := s.svc.DeletePerson(r.Context(), id)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(removed).Write(w)
}

func (s *Server) handlePersonSummary(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	summary, err := s.svc.PersonSummary(id)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(summary).Write(w)
}
