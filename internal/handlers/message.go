package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/simquery/internal/chat"
)

type CreateMessageRequest struct {
	ChatExternalID string `json:"chatExternalId"`
	Content        string `json:"content"`
}

type MessageHandler struct {
	Chats  *chat.Service
	Logger *slog.Logger
}

// CreateMessage answers 201 even when no AI reply could be produced; the
// response then has no aiMessage.
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	res, err := h.Chats.CreateMessage(r.Context(), p, req.ChatExternalID, req.Content)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	msg, err := h.Chats.GetMessage(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r, h.Logger)
	if !ok {
		return
	}

	if err := h.Chats.DeleteMessage(r.Context(), p, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
