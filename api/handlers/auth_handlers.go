package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"campus-alert/config"
	"campus-alert/core/auth"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	admins         store.AdminsStore
	requests       store.AdminRequestsStore
	sessionManager *auth.SessionManager
	hasher         *auth.Hasher
	audits         store.AuditLogStore
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, admins store.AdminsStore, requests store.AdminRequestsStore, sm *auth.SessionManager, hasher *auth.Hasher, audits store.AuditLogStore, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, admins: admins, requests: requests, sessionManager: sm, hasher: hasher, audits: audits, logger: logger}
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	cred.Username = strings.ToLower(strings.TrimSpace(cred.Username))
	if cred.Username == "" || cred.Password == "" {
		http.Error(w, "auth.credentialsRequired", http.StatusBadRequest)
		return
	}
	admin, err := h.admins.FindByUsername(r.Context(), cred.Username)
	if err != nil || admin == nil || !admin.Active {
		_ = h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "user missing or inactive")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !h.hasher.Verify(cred.Password, admin.PasswordHash, admin.Salt) {
		_ = h.audits.Log(r.Context(), cred.Username, "auth.login_failed", "bad password")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	rec, err := h.sessionManager.Issue(r.Context(), w, r, admin)
	if err != nil {
		h.logger.Errorf("session issue for %s: %v", admin.Username, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), admin.Username, "auth.login", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"admin_id":   admin.AdminID,
		"username":   admin.Username,
		"full_name":  admin.FullName,
		"role":       admin.Role,
		"csrf_token": rec.CSRFToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sr := currentSession(r); sr != nil {
		_ = h.audits.Log(r.Context(), sr.Username, "auth.logout", "")
	}
	if err := h.sessionManager.Revoke(r.Context(), w, r); err != nil {
		h.logger.Errorf("session revoke: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	if sr == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	admin, err := h.admins.Get(r.Context(), sr.AdminID)
	if err != nil || admin == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"admin_id":   admin.AdminID,
		"username":   admin.Username,
		"full_name":  admin.FullName,
		"email":      admin.Email,
		"role":       admin.Role,
		"csrf_token": sr.CSRFToken,
	})
}

// RequestAccess files an admin-account request for later approval. Open to
// unauthenticated callers.
func (h *AuthHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req := &store.AdminRequest{
		Email:    strings.TrimSpace(payload.Email),
		Username: strings.ToLower(strings.TrimSpace(payload.Username)),
		FullName: strings.TrimSpace(payload.FullName),
		Reason:   strings.TrimSpace(payload.Reason),
	}
	if req.Email == "" || req.Username == "" {
		http.Error(w, "auth.requestFieldsRequired", http.StatusBadRequest)
		return
	}
	if existing, err := h.admins.FindByUsername(r.Context(), req.Username); err == nil && existing != nil {
		http.Error(w, "auth.usernameTaken", http.StatusConflict)
		return
	}
	if err := h.requests.Insert(r.Context(), req); err != nil {
		h.logger.Errorf("admin request insert: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID, "status": req.Status})
}
