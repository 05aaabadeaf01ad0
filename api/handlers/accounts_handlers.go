package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campus-alert/config"
	"campus-alert/core/auth"
	"campus-alert/core/incidents"
	"campus-alert/core/notify"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type AccountsHandler struct {
	cfg      *config.AppConfig
	admins   store.AdminsStore
	students store.StudentsStore
	requests store.AdminRequestsStore
	archive  store.ArchiveStore
	svc      *incidents.Service
	hasher   *auth.Hasher
	sender   notify.Sender
	audits   store.AuditLogStore
	logger   *utils.Logger
}

func NewAccountsHandler(cfg *config.AppConfig, admins store.AdminsStore, students store.StudentsStore, requests store.AdminRequestsStore, archive store.ArchiveStore, svc *incidents.Service, hasher *auth.Hasher, sender notify.Sender, audits store.AuditLogStore, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{cfg: cfg, admins: admins, students: students, requests: requests, archive: archive, svc: svc, hasher: hasher, sender: sender, audits: audits, logger: logger}
}

func (h *AccountsHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	items, err := h.admins.List(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		http.Error(w, "accounts.fieldsRequired", http.StatusBadRequest)
		return
	}
	if existing, err := h.admins.FindByUsername(r.Context(), payload.Username); err == nil && existing != nil {
		http.Error(w, "accounts.usernameTaken", http.StatusConflict)
		return
	}
	adminID, err := h.admins.NextAdminID(r.Context(), h.cfg.Incidents.AdminIDPrefix)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	hash, salt := h.hasher.Hash(payload.Password)
	admin := &store.Admin{
		AdminID:      adminID,
		Username:     payload.Username,
		Email:        strings.TrimSpace(payload.Email),
		FullName:     strings.TrimSpace(payload.FullName),
		PasswordHash: hash,
		Salt:         salt,
		Role:         strings.ToLower(strings.TrimSpace(payload.Role)),
		Active:       true,
	}
	if err := h.admins.Create(r.Context(), admin); err != nil {
		h.logger.Errorf("admin create: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), sr.Username, "accounts.admin_create", admin.AdminID)
	writeJSON(w, http.StatusCreated, admin)
}

func (h *AccountsHandler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	admin, err := h.admins.Get(r.Context(), urlParam(r, "admin_id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if admin == nil {
		http.Error(w, "accounts.notFound", http.StatusNotFound)
		return
	}
	var payload struct {
		Email    *string `json:"email"`
		FullName *string `json:"full_name"`
		Role     *string `json:"role"`
		Active   *bool   `json:"active"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if payload.Email != nil {
		admin.Email = strings.TrimSpace(*payload.Email)
	}
	if payload.FullName != nil {
		admin.FullName = strings.TrimSpace(*payload.FullName)
	}
	if payload.Role != nil {
		admin.Role = strings.ToLower(strings.TrimSpace(*payload.Role))
	}
	if payload.Active != nil {
		admin.Active = *payload.Active
	}
	if payload.Password != nil && *payload.Password != "" {
		admin.PasswordHash, admin.Salt = h.hasher.Hash(*payload.Password)
	}
	if err := h.admins.Update(r.Context(), admin); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), sr.Username, "accounts.admin_update", admin.AdminID)
	writeJSON(w, http.StatusOK, admin)
}

func (h *AccountsHandler) ArchiveAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	res, err := h.svc.ArchiveAdmin(r.Context(), actor, urlParam(r, "admin_id"), body["reason"])
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.OK {
		_ = h.audits.Log(r.Context(), actor.Username, "accounts.admin_archive", urlParam(r, "admin_id"))
	}
	writeActionResult(w, res)
}

func (h *AccountsHandler) RestoreAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	res, err := h.svc.RestoreAdmin(r.Context(), actor, urlParam(r, "archive_id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeActionResult(w, res)
}

func (h *AccountsHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	items, err := h.students.List(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) ArchiveStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	res, err := h.svc.ArchiveStudent(r.Context(), actor, urlParam(r, "student_id"), body["reason"])
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeActionResult(w, res)
}

func (h *AccountsHandler) RestoreStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	res, err := h.svc.RestoreStudent(r.Context(), actor, urlParam(r, "archive_id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeActionResult(w, res)
}

func (h *AccountsHandler) ListArchivedUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.archive.ListUsers(r.Context(), strings.TrimSpace(r.URL.Query().Get("kind")), parseIntDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AccountsHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	items, err := h.requests.ListPending(r.Context(), parseIntDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DecideRequest approves or rejects a pending admin-account request.
// Approval creates the account with a generated temporary password and mails
// it to the requester.
func (h *AccountsHandler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	id, err := strconv.ParseInt(urlParam(r, "request_id"), 10, 64)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var payload struct {
		Decision string `json:"decision"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	decision := strings.ToLower(strings.TrimSpace(payload.Decision))
	if decision != store.RequestApproved && decision != store.RequestRejected {
		http.Error(w, "accounts.decisionInvalid", http.StatusBadRequest)
		return
	}
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if req == nil {
		http.Error(w, "accounts.notFound", http.StatusNotFound)
		return
	}
	if err := h.requests.Decide(r.Context(), id, decision, sr.AdminID, time.Now().UTC()); err != nil {
		http.Error(w, "accounts.alreadyDecided", http.StatusConflict)
		return
	}
	_ = h.audits.Log(r.Context(), sr.Username, "accounts.request_"+decision, req.Username)

	if decision == store.RequestRejected {
		writeJSON(w, http.StatusOK, map[string]string{"status": decision})
		return
	}

	adminID, err := h.admins.NextAdminID(r.Context(), h.cfg.Incidents.AdminIDPrefix)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	tempPassword, err := utils.RandString(12)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	hash, salt := h.hasher.Hash(tempPassword)
	admin := &store.Admin{
		AdminID:      adminID,
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Salt:         salt,
		Role:         strings.ToLower(strings.TrimSpace(payload.Role)),
		Active:       true,
	}
	if err := h.admins.Create(r.Context(), admin); err != nil {
		h.logger.Errorf("approved admin create: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if err := h.sender.Send(r.Context(), req.Email, "Your responder account",
		"Your account "+admin.Username+" has been approved. Temporary password: "+tempPassword); err != nil {
		h.logger.Errorf("approval mail to %s: %v", req.Email, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": decision, "admin_id": admin.AdminID})
}
