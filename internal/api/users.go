package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docbridge/internal/domain"
)

type createUserResp struct {
	ID string `json:"id"`
}

type statusResp struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	id, err := s.users.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createUserResp{ID: id})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	all, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if err := s.users.Update(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{Status: "updated", Message: "User updated successfully"})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{Status: "deleted"})
}
