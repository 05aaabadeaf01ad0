package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"campus-alert/api"
	"campus-alert/config"
	"campus-alert/core/auth"
	"campus-alert/core/geo"
	"campus-alert/core/incidents"
	"campus-alert/core/notify"
	"campus-alert/core/rbac"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type serverEnv struct {
	cfg       *config.AppConfig
	hasher    *auth.Hasher
	admins    store.AdminsStore
	students  store.StudentsStore
	incidents store.IncidentsStore
	reports   store.ReportsStore
	trail     store.AuditTrailStore
	ts        *httptest.Server
}

func setupServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(t.TempDir(), "campus.db"),
		Pepper:     "pepper",
		SessionTTL: time.Hour,
		Timezone:   "UTC",
		Incidents:  config.IncidentsConfig{ResolvedIDPrefix: "RSV", AdminIDPrefix: "ADM", FeedLimit: 60},
		Security:   config.SecurityConfig{OnlineWindowSec: 300},
	}
	utils.SetReferenceZone(cfg.Timezone)
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	incidentsStore := store.NewIncidentsStore(db)
	trailStore := store.NewAuditTrailStore(db)
	reportsStore := store.NewReportsStore(db)
	archiveStore := store.NewArchiveStore(db)
	adminsStore := store.NewAdminsStore(db)
	studentsStore := store.NewStudentsStore(db)
	chatStore := store.NewChatStore(db)
	sessionsStore := store.NewSessionsStore(db)
	requestsStore := store.NewAdminRequestsStore(db)
	audits := store.NewAuditLogStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("rbac: %v", err)
	}
	svc := incidents.NewService(incidents.ServiceDeps{
		Incidents:        incidentsStore,
		Audit:            trailStore,
		Reports:          reportsStore,
		Archive:          archiveStore,
		Admins:           adminsStore,
		Students:         studentsStore,
		Chat:             chatStore,
		Notifier:         notify.NopSender{},
		Logger:           logger,
		ResolvedIDPrefix: cfg.Incidents.ResolvedIDPrefix,
		FeedLimit:        cfg.Incidents.FeedLimit,
	})
	server := api.NewServer(api.ServerDeps{
		Cfg:            cfg,
		Policy:         policy,
		SessionManager: auth.NewSessionManager(sessionsStore, cfg.EffectiveSessionTTL(), false),
		Hasher:         auth.NewHasher(cfg.Pepper),
		Incidents:      incidentsStore,
		Archive:        archiveStore,
		Reports:        reportsStore,
		Students:       studentsStore,
		Admins:         adminsStore,
		Requests:       requestsStore,
		Chat:           chatStore,
		Sessions:       sessionsStore,
		Trail:          trailStore,
		Audits:         audits,
		Service:        svc,
		Geocoder:       geo.NewGeocoder(config.GeocodingConfig{Enabled: false}, logger),
		Sender:         notify.NopSender{},
		Logger:         logger,
	})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &serverEnv{
		cfg:       cfg,
		hasher:    auth.NewHasher(cfg.Pepper),
		admins:    adminsStore,
		students:  studentsStore,
		incidents: incidentsStore,
		reports:   reportsStore,
		trail:     trailStore,
		ts:        ts,
	}
}

func (e *serverEnv) createAdmin(t *testing.T, adminID, username, password, role string) {
	t.Helper()
	hash, salt := e.hasher.Hash(password)
	err := e.admins.Create(context.Background(), &store.Admin{
		AdminID:      adminID,
		Username:     username,
		FullName:     username,
		PasswordHash: hash,
		Salt:         salt,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create admin %s: %v", username, err)
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url, csrf string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if csrf != "" {
		req.Header.Set(auth.CSRFHeader, csrf)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func login(t *testing.T, env *serverEnv, client *http.Client, username, password string) string {
	t.Helper()
	resp, body := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/auth/login", "",
		map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	csrf, _ := body["csrf_token"].(string)
	if csrf == "" {
		t.Fatalf("login response missing csrf token: %v", body)
	}
	return csrf
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	env := setupServerEnv(t)
	ctx := context.Background()
	env.createAdmin(t, "ADM0001", "dana", "s3cret-dana", "admin")
	if err := env.students.Insert(ctx, &store.Student{StudentID: "STU1", FullName: "Maria Cruz", Email: "maria@campus.test"}); err != nil {
		t.Fatalf("seed student: %v", err)
	}

	// Admin surfaces are closed to anonymous callers.
	anon := newClient(t)
	resp, _ := doJSON(t, anon, http.MethodGet, env.ts.URL+"/api/incidents", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list: status %d, want 401", resp.StatusCode)
	}

	// Student intake needs no admin session.
	resp, created := doJSON(t, anon, http.MethodPost, env.ts.URL+"/api/reports", "", map[string]any{
		"category":    "fire",
		"description": "smoke on the second floor",
		"building":    "Science Hall",
		"floor":       "2",
		"reporter_id": "STU1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report intake: status %d", resp.StatusCode)
	}
	icdID, _ := created["icd_id"].(string)
	if !strings.HasPrefix(icdID, "ICD") {
		t.Fatalf("unexpected incident id %q", icdID)
	}

	client := newClient(t)
	csrf := login(t, env, client, "dana", "s3cret-dana")

	// State-changing calls without the CSRF header are refused even with a
	// valid session cookie.
	resp, _ = doJSON(t, client, http.MethodPost, env.ts.URL+"/api/incidents/"+icdID+"/dispatch", "", map[string]string{})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing csrf: status %d, want 403", resp.StatusCode)
	}

	resp, body := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/incidents/"+icdID+"/dispatch", csrf,
		map[string]string{"responder_id": "ADM0001"})
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("dispatch: status %d body %v", resp.StatusCode, body)
	}

	inc, err := env.incidents.Get(ctx, icdID)
	if err != nil || inc == nil || inc.Status != incidents.StatusPending || inc.AssignedResponderID != "ADM0001" {
		t.Fatalf("incident after dispatch: %+v (err %v)", inc, err)
	}

	resp, body = doJSON(t, client, http.MethodPost, env.ts.URL+"/api/incidents/"+icdID+"/resolve", csrf,
		map[string]string{"summary": "Handled on site"})
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("resolve: status %d body %v", resp.StatusCode, body)
	}
	resolvedID, _ := body["resolved_id"].(string)
	if !strings.HasPrefix(resolvedID, "RSV") {
		t.Fatalf("resolve response missing resolved id: %v", body)
	}

	resp, view := doJSON(t, client, http.MethodGet, env.ts.URL+"/api/resolved/"+resolvedID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report view: status %d", resp.StatusCode)
	}
	if view["report"] == nil || view["duration"] == "" {
		t.Fatalf("report view incomplete: %v", view)
	}

	resp, feed := doJSON(t, client, http.MethodGet, env.ts.URL+"/api/incidents/feed", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed: status %d", resp.StatusCode)
	}
	items, _ := feed["items"].([]any)
	if len(items) < 3 {
		t.Fatalf("feed should carry report, dispatch and resolve events, got %d", len(items))
	}

	resp, dash := doJSON(t, client, http.MethodGet, env.ts.URL+"/api/dashboard", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}
	counts, _ := dash["counts"].(map[string]any)
	if counts["resolved"] != float64(1) {
		t.Fatalf("dashboard counts: %v", counts)
	}
}

func TestDashboardCountsRespectVisibility(t *testing.T) {
	env := setupServerEnv(t)
	ctx := context.Background()
	env.createAdmin(t, "ADM0010", "rita", "s3cret-rita", "responder")

	// One open incident rita may work, one pending incident assigned to a
	// different responder.
	reported := time.Now().UTC().Add(-time.Hour)
	pending := reported.Add(10 * time.Minute)
	if err := env.incidents.Insert(ctx, &store.Incident{
		ICDID: "ICD301", Category: "fire", Status: "active", ReportedAt: &reported,
	}); err != nil {
		t.Fatalf("seed open incident: %v", err)
	}
	if err := env.incidents.Insert(ctx, &store.Incident{
		ICDID: "ICD302", Category: "medical", Status: "pending",
		AssignedResponderID: "ADM0099", ReportedAt: &reported, PendingAt: &pending,
	}); err != nil {
		t.Fatalf("seed assigned incident: %v", err)
	}

	client := newClient(t)
	login(t, env, client, "rita", "s3cret-rita")

	resp, dash := doJSON(t, client, http.MethodGet, env.ts.URL+"/api/dashboard", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}
	counts, _ := dash["counts"].(map[string]any)
	if counts["active"] != float64(1) {
		t.Fatalf("visible incident missing from counts: %v", counts)
	}
	if _, leaked := counts["pending"]; leaked {
		t.Fatalf("counts leak an incident assigned to another responder: %v", counts)
	}
	open, _ := dash["open"].([]any)
	if len(open) != 1 {
		t.Fatalf("open list should carry only the visible incident, got %d", len(open))
	}
}

func TestResponderRoleIsScoped(t *testing.T) {
	env := setupServerEnv(t)
	env.createAdmin(t, "ADM0002", "leo", "s3cret-leo", "responder")

	client := newClient(t)
	csrf := login(t, env, client, "leo", "s3cret-leo")

	// Responders work incidents but never the account surfaces.
	resp, _ := doJSON(t, client, http.MethodGet, env.ts.URL+"/api/incidents", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("responder incidents list: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, client, http.MethodGet, env.ts.URL+"/api/admins", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("responder admins list: status %d, want 403", resp.StatusCode)
	}
	resp, _ = doJSON(t, client, http.MethodPost, env.ts.URL+"/api/incidents/bulk-status", csrf,
		map[string]any{"ids": []string{"ICD404"}, "status": "cancelled"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("responder bulk status: status %d", resp.StatusCode)
	}
}
