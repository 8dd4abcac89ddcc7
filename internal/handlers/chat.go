package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/simquery/internal/auth"
	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/middleware"
	"github.com/pliu/simquery/internal/models"
)

type ChatRequest struct {
	Title string `json:"title"`
}

type ChatHandler struct {
	Chats  *chat.Service
	Logger *slog.Logger
}

// principal reports a 401 and returns false when the request carries no
// authenticated caller.
func principal(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, logger, auth.ErrInvalidToken)
	}
	return p, ok
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	chats, err := h.Chats.ListChats(r.Context(), p)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	c, err := h.Chats.CreateChat(r.Context(), p, req.Title)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	c, err := h.Chats.GetChat(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChatHandler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	c, err := h.Chats.UpdateChat(r.Context(), p, mux.Vars(r)["id"], req.Title)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	if err := h.Chats.DeleteChat(r.Context(), p, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	messages, err := h.Chats.ListMessages(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
