package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"campus-alert/core/incidents"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type ChatHandler struct {
	chat   store.ChatStore
	inc    store.IncidentsStore
	logger *utils.Logger
}

func NewChatHandler(chat store.ChatStore, inc store.IncidentsStore, logger *utils.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, inc: inc, logger: logger}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	inc, err := h.inc.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if inc == nil {
		http.Error(w, "incidents.notFound", http.StatusNotFound)
		return
	}
	if d := incidents.CanView(inc, actor.AdminID); !d.Allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": d.Reason})
		return
	}
	items, err := h.chat.ListForIncident(r.Context(), inc.ICDID, parseIntDefault(r.URL.Query().Get("limit"), 200))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Post appends a chat message from the acting admin. Messaging follows the
// edit rule: closed incidents and incidents claimed by another responder do
// not accept messages.
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	inc, err := h.inc.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if inc == nil {
		http.Error(w, "incidents.notFound", http.StatusNotFound)
		return
	}
	if d := incidents.CanEdit(inc, actor.AdminID); !d.Allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": d.Reason})
		return
	}
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Body) == "" {
		http.Error(w, "chat.bodyRequired", http.StatusBadRequest)
		return
	}
	msg := &store.ChatMessage{
		IncidentID: inc.ICDID,
		SenderID:   actor.AdminID,
		SenderRole: "admin",
		Body:       strings.TrimSpace(payload.Body),
	}
	if err := h.chat.Insert(r.Context(), msg); err != nil {
		h.logger.Errorf("chat insert for %s: %v", inc.ICDID, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
