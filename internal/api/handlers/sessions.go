package handlers

import (
	"net/http"
	"strconv"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/pagination"
	"github.com/cloo-solutions/docchat/internal/session"
	"github.com/go-chi/chi/v5"
)

type SessionService interface {
	Page(id string, limit int, cursor string) (*pagination.PageResult[session.Turn], error)
	Clear(id string) bool
	Delete(id string) bool
}

type SessionHandler struct {
	sessions SessionService
}

func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// History returns one page of a session's turns, oldest first.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.sessions.Page(id, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, page)
}

// ClearResponse is returned once a session's history is emptied
type ClearResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// Clear empties a session's history but keeps the session.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Clear(id) {
		api.HandleError(w, domain.ErrSessionNotFound)
		return
	}
	api.Success(w, http.StatusOK, ClearResponse{Status: "cleared", SessionID: id})
}

// Delete drops a session and its history.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Delete(id) {
		api.HandleError(w, domain.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
