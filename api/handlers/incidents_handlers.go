package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"campus-alert/config"
	"campus-alert/core/geo"
	"campus-alert/core/incidents"
	"campus-alert/core/store"
	"campus-alert/core/utils"

	"github.com/gofrs/uuid/v5"
)

type IncidentsHandler struct {
	cfg      *config.AppConfig
	store    store.IncidentsStore
	archive  store.ArchiveStore
	reports  store.ReportsStore
	students store.StudentsStore
	admins   store.AdminsStore
	svc      *incidents.Service
	geocoder *geo.Geocoder
	audits   store.AuditLogStore
	logger   *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, is store.IncidentsStore, as store.ArchiveStore, rs store.ReportsStore, ss store.StudentsStore, ads store.AdminsStore, svc *incidents.Service, geocoder *geo.Geocoder, audits store.AuditLogStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, store: is, archive: as, reports: rs, students: ss, admins: ads, svc: svc, geocoder: geocoder, audits: audits, logger: logger}
}

type incidentDTO struct {
	store.Incident
	ReporterName  string `json:"reporter_name,omitempty"`
	ResponderName string `json:"responder_name,omitempty"`
	CanEdit       bool   `json:"can_edit"`
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	filter := store.IncidentFilter{
		Search:   strings.TrimSpace(r.URL.Query().Get("q")),
		Status:   strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Limit:    parseIntDefault(r.URL.Query().Get("limit"), 0),
		Offset:   parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	if q := strings.TrimSpace(r.URL.Query().Get("status_in")); q != "" {
		for _, part := range strings.Split(q, ",") {
			if clean := strings.ToLower(strings.TrimSpace(part)); clean != "" {
				filter.StatusIn = append(filter.StatusIn, clean)
			}
		}
	}
	if r.URL.Query().Get("assigned_to_me") == "1" {
		filter.AssignedTo = actor.AdminID
	}
	items, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("incidents list: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	visible := incidents.FilterVisible(items, actor.AdminID)
	writeJSON(w, http.StatusOK, map[string]any{"items": h.decorate(r, visible, actor.AdminID)})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	inc, err := h.store.Get(r.Context(), urlParam(r, "id"))
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
	dto := h.decorate(r, []store.Incident{*inc}, actor.AdminID)[0]
	writeJSON(w, http.StatusOK, dto)
}

// Report ingests a new student report. Incidents always enter the lifecycle
// as active and unassigned.
func (h *IncidentsHandler) Report(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category    string   `json:"category"`
		Description string   `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		Building    string   `json:"building"`
		Floor       string   `json:"floor"`
		Room        string   `json:"room"`
		Priority    string   `json:"priority"`
		ReporterID  string   `json:"reporter_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Category) == "" {
		http.Error(w, "incidents.categoryRequired", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	inc := &store.Incident{
		ICDID:       newIncidentID(),
		Category:    strings.TrimSpace(payload.Category),
		Description: strings.TrimSpace(payload.Description),
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		Building:    strings.TrimSpace(payload.Building),
		Floor:       strings.TrimSpace(payload.Floor),
		Room:        strings.TrimSpace(payload.Room),
		Priority:    strings.ToLower(strings.TrimSpace(payload.Priority)),
		ReporterID:  strings.TrimSpace(payload.ReporterID),
		Status:      incidents.StatusActive,
		ReportedAt:  &now,
	}
	if err := h.store.Insert(r.Context(), inc); err != nil {
		h.logger.Errorf("incident insert: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) MarkPending(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.mark_pending", func(actor incidents.Actor, icdID string, _ map[string]string) (incidents.ActionResult, error) {
		return h.svc.MarkPending(r.Context(), actor, icdID)
	})
}

func (h *IncidentsHandler) MarkResolved(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.mark_resolved", func(actor incidents.Actor, icdID string, body map[string]string) (incidents.ActionResult, error) {
		return h.svc.MarkResolved(r.Context(), actor, icdID, body["summary"])
	})
}

func (h *IncidentsHandler) MarkCancelled(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.mark_cancelled", func(actor incidents.Actor, icdID string, body map[string]string) (incidents.ActionResult, error) {
		return h.svc.MarkCancelled(r.Context(), actor, icdID, body["reason"])
	})
}

func (h *IncidentsHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.dispatch", func(actor incidents.Actor, icdID string, body map[string]string) (incidents.ActionResult, error) {
		return h.svc.Dispatch(r.Context(), actor, icdID, body["responder_id"])
	})
}

func (h *IncidentsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.archive", func(actor incidents.Actor, icdID string, body map[string]string) (incidents.ActionResult, error) {
		return h.svc.ArchiveIncident(r.Context(), actor, icdID, body["reason"])
	})
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, "incident.delete", func(actor incidents.Actor, icdID string, _ map[string]string) (incidents.ActionResult, error) {
		return h.svc.DeleteIncident(r.Context(), actor, icdID)
	})
}

func (h *IncidentsHandler) runAction(w http.ResponseWriter, r *http.Request, auditAction string, fn func(incidents.Actor, string, map[string]string) (incidents.ActionResult, error)) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	icdID := urlParam(r, "id")
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	res, err := fn(actor, icdID, body)
	if err != nil {
		h.logger.Errorf("%s %s: %v", auditAction, icdID, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.OK {
		_ = h.audits.Log(r.Context(), actor.Username, auditAction, icdID)
	}
	writeActionResult(w, res)
}

func (h *IncidentsHandler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload struct {
		IDs    []string `json:"ids"`
		Status string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.IDs) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	results, err := h.svc.BulkStatusUpdate(r.Context(), actor, payload.IDs, payload.Status)
	if err != nil {
		http.Error(w, "incidents.statusInvalid", http.StatusBadRequest)
		return
	}
	_ = h.audits.Log(r.Context(), actor.Username, "incident.bulk_status", fmt.Sprintf("%d -> %s", len(payload.IDs), payload.Status))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *IncidentsHandler) RestoreIncident(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	archiveID := urlParam(r, "archive_id")
	res, err := h.svc.RestoreIncident(r.Context(), actor, archiveID)
	if err != nil {
		h.logger.Errorf("incident restore %s: %v", archiveID, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.OK {
		_ = h.audits.Log(r.Context(), actor.Username, "incident.restore", archiveID)
	}
	writeActionResult(w, res)
}

func (h *IncidentsHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	items, err := h.archive.ListIncidents(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	events := h.svc.ActivityFeed(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

// ExportCSV streams the visible incidents as CSV, resolving a place name for
// rows that carry coordinates.
func (h *IncidentsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.store.List(r.Context(), store.IncidentFilter{})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	visible := incidents.FilterVisible(items, actor.AdminID)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="incidents.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"icd_id", "category", "status", "priority", "description", "location", "place", "reporter_id", "assigned_responder_id", "reported_at"})
	for i := range visible {
		inc := &visible[i]
		place := ""
		if inc.Latitude != nil && inc.Longitude != nil {
			place = h.geocoder.ReverseLookup(r.Context(), *inc.Latitude, *inc.Longitude)
		}
		reported := ""
		if inc.ReportedAt != nil {
			reported = inc.ReportedAt.UTC().Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			inc.ICDID, inc.Category, inc.Status, inc.Priority,
			incidents.TruncateDescription(inc.Description),
			incidents.FormatLocation(inc), place,
			inc.ReporterID, inc.AssignedResponderID, reported,
		})
	}
	cw.Flush()
	_ = h.audits.Log(r.Context(), actor.Username, "incident.export", fmt.Sprintf("%d rows", len(visible)))
}

func (h *IncidentsHandler) decorate(r *http.Request, items []store.Incident, adminID string) []incidentDTO {
	var studentIDs, adminIDs []string
	for i := range items {
		studentIDs = append(studentIDs, items[i].ReporterID)
		adminIDs = append(adminIDs, items[i].AssignedResponderID)
	}
	studentNames, err := h.students.GetNames(r.Context(), studentIDs)
	if err != nil {
		h.logger.Errorf("student names: %v", err)
	}
	adminNames, err := h.admins.GetNames(r.Context(), adminIDs)
	if err != nil {
		h.logger.Errorf("admin names: %v", err)
	}
	out := make([]incidentDTO, 0, len(items))
	for i := range items {
		inc := items[i]
		out = append(out, incidentDTO{
			Incident:      inc,
			ReporterName:  studentNames[inc.ReporterID],
			ResponderName: adminNames[inc.AssignedResponderID],
			CanEdit:       incidents.CanEdit(&inc, adminID).Allowed,
		})
	}
	return out
}

func newIncidentID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("ICD%d", time.Now().UnixNano())
	}
	return "ICD" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
