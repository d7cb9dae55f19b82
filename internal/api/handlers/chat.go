package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/api/middleware"
	"github.com/cloo-solutions/docchat/internal/service"
)

type ChatService interface {
	Ask(ctx context.Context, in service.AskInput) (*service.AskOutput, error)
	AskModel(ctx context.Context, question string) (string, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type AskResponse struct {
	Answer          string           `json:"answer"`
	SessionID       string           `json:"session_id"`
	StandaloneQuery string           `json:"standalone_query"`
	Sources         []service.Source `json:"sources"`
}

type AnswerResponse struct {
	Answer string `json:"answer"`
}

// AskDocuments answers from the indexed documents. The session comes from
// the body, then the X-Session-ID header, then the default session.
func (h *ChatHandler) AskDocuments(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = middleware.GetSessionID(r.Context())
	}

	out, err := h.svc.Ask(r.Context(), service.AskInput{
		SessionID: sessionID,
		Question:  req.Query,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sources := out.Sources
	if sources == nil {
		sources = []service.Source{}
	}

	w.Header().Set(middleware.SessionIDHeader, out.SessionID)
	api.Success(w, http.StatusOK, AskResponse{
		Answer:          out.Answer,
		SessionID:       out.SessionID,
		StandaloneQuery: out.StandaloneQuery,
		Sources:         sources,
	})
}

// AskLLM forwards the query to the model without retrieval or history.
func (h *ChatHandler) AskLLM(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.AskModel(r.Context(), req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{Answer: answer})
}
