package handlers

import (
	"net/http"
	"time"

	"campus-alert/config"
	"campus-alert/core/incidents"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type DashboardHandler struct {
	cfg      *config.AppConfig
	inc      store.IncidentsStore
	sessions store.SessionStore
	svc      *incidents.Service
	logger   *utils.Logger
}

func NewDashboardHandler(cfg *config.AppConfig, inc store.IncidentsStore, sessions store.SessionStore, svc *incidents.Service, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{cfg: cfg, inc: inc, sessions: sessions, svc: svc, logger: logger}
}

// Overview returns the dashboard counters and the recent activity feed. The
// counters and the open list are both derived from the incidents the actor
// may view, so a responder never sees counts for work assigned to someone
// else.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var items []store.Incident
	err := utils.Retry(r.Context(), func() error {
		var err error
		items, err = h.inc.List(r.Context(), store.IncidentFilter{})
		return err
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	visible := incidents.FilterVisible(items, actor.AdminID)

	counts := map[string]int{}
	open := make([]store.Incident, 0, len(visible))
	for i := range visible {
		status := incidents.NormalizeStatus(visible[i].Status)
		counts[status]++
		if status == incidents.StatusActive || status == incidents.StatusPending {
			open = append(open, visible[i])
		}
	}

	window := time.Duration(h.cfg.Security.OnlineWindowSec) * time.Second
	online, err := h.sessions.CountActiveSince(r.Context(), time.Now().UTC().Add(-window))
	if err != nil {
		h.logger.Errorf("online count: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"counts":        counts,
		"online_admins": online,
		"open":          open,
		"activity":      h.svc.ActivityFeed(r.Context(), 0),
	})
}

type LogsHandler struct {
	audits store.AuditLogStore
	trail  store.AuditTrailStore
}

func NewLogsHandler(audits store.AuditLogStore, trail store.AuditTrailStore) *LogsHandler {
	return &LogsHandler{audits: audits, trail: trail}
}

func (h *LogsHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	items, err := h.audits.ListRecent(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 200))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *LogsHandler) ListTrail(w http.ResponseWriter, r *http.Request) {
	if id := urlParam(r, "id"); id != "" {
		items, err := h.trail.ListForIncident(r.Context(), id)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	items, err := h.trail.ListRecent(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 200))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
