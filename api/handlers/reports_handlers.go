package handlers

import (
	"net/http"

	"campus-alert/core/incidents"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type ReportsHandler struct {
	reports store.ReportsStore
	inc     store.IncidentsStore
	logger  *utils.Logger
}

func NewReportsHandler(reports store.ReportsStore, inc store.IncidentsStore, logger *utils.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, inc: inc, logger: logger}
}

func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.reports.List(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get renders one report with its presentation view. The incident row may
// already be archived; the description then stays empty.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.Error(w, "reports.notFound", http.StatusNotFound)
		return
	}
	description := ""
	if inc, err := h.inc.Get(r.Context(), report.IncidentID); err == nil && inc != nil {
		description = inc.Description
	}
	writeJSON(w, http.StatusOK, incidents.BuildReportView(*report, description))
}
