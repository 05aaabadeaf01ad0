package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"campus-alert/core/auth"
	"campus-alert/core/incidents"
	"campus-alert/core/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func urlParam(r *http.Request, key string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if v := chi.URLParam(r, key); v != "" {
			return v
		}
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	markers := map[string]string{
		"id":         "incidents",
		"archive_id": "archive",
		"student_id": "students",
		"admin_id":   "admins",
		"request_id": "requests",
	}
	marker, ok := markers[key]
	if !ok {
		return ""
	}
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker && strings.TrimSpace(segments[i+1]) != "" {
			return segments[i+1]
		}
	}
	return ""
}

func parseIntDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func currentSession(r *http.Request) *store.SessionRecord {
	return auth.SessionFrom(r.Context())
}

func currentActor(r *http.Request) (incidents.Actor, bool) {
	sr := currentSession(r)
	if sr == nil {
		return incidents.Actor{}, false
	}
	return incidents.Actor{AdminID: sr.AdminID, Username: sr.Username}, true
}

// writeActionResult maps a domain action outcome onto HTTP: denials become
// 403 with the reason, not-found reasons become 404.
func writeActionResult(w http.ResponseWriter, res incidents.ActionResult) {
	if res.OK {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status := http.StatusForbidden
	if strings.Contains(strings.ToLower(res.Message), "not found") {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}
