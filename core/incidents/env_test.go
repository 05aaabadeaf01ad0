package incidents

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"campus-alert/config"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

type sentMail struct {
	Recipient string
	Subject   string
	Body      string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (c *captureNotifier) Send(_ context.Context, recipient, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMail{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (c *captureNotifier) all() []sentMail {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMail, len(c.sent))
	copy(out, c.sent)
	return out
}

type testEnv struct {
	svc       *Service
	incidents store.IncidentsStore
	audit     store.AuditTrailStore
	reports   store.ReportsStore
	archive   store.ArchiveStore
	admins    store.AdminsStore
	students  store.StudentsStore
	chat      store.ChatStore
	mails     *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	utils.SetReferenceZone("UTC")
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "campus.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	env := &testEnv{
		incidents: store.NewIncidentsStore(db),
		audit:     store.NewAuditTrailStore(db),
		reports:   store.NewReportsStore(db),
		archive:   store.NewArchiveStore(db),
		admins:    store.NewAdminsStore(db),
		students:  store.NewStudentsStore(db),
		chat:      store.NewChatStore(db),
		mails:     &captureNotifier{},
	}
	env.svc = NewService(ServiceDeps{
		Incidents:        env.incidents,
		Audit:            env.audit,
		Reports:          env.reports,
		Archive:          env.archive,
		Admins:           env.admins,
		Students:         env.students,
		Chat:             env.chat,
		Notifier:         env.mails,
		Logger:           logger,
		ResolvedIDPrefix: "RSV",
		FeedLimit:        60,
	})
	return env
}

func (e *testEnv) seedAdmin(t *testing.T, adminID, username, fullName string) {
	t.Helper()
	err := e.admins.Create(context.Background(), &store.Admin{
		AdminID:      adminID,
		Username:     username,
		FullName:     fullName,
		PasswordHash: "h",
		Salt:         "s",
		Role:         "responder",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed admin %s: %v", adminID, err)
	}
}

func (e *testEnv) seedStudent(t *testing.T, studentID, fullName, email string) {
	t.Helper()
	err := e.students.Insert(context.Background(), &store.Student{
		StudentID: studentID,
		UserID:    "u-" + studentID,
		Username:  studentID,
		Email:     email,
		FullName:  fullName,
	})
	if err != nil {
		t.Fatalf("seed student %s: %v", studentID, err)
	}
}

func (e *testEnv) seedIncident(t *testing.T, inc store.Incident) {
	t.Helper()
	if inc.Category == "" {
		inc.Category = "fire"
	}
	if inc.ReportedAt == nil {
		at := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		inc.ReportedAt = &at
	}
	if err := e.incidents.Insert(context.Background(), &inc); err != nil {
		t.Fatalf("seed incident %s: %v", inc.ICDID, err)
	}
}

func (e *testEnv) mustGet(t *testing.T, icdID string) *store.Incident {
	t.Helper()
	inc, err := e.incidents.Get(context.Background(), icdID)
	if err != nil {
		t.Fatalf("get incident %s: %v", icdID, err)
	}
	if inc == nil {
		t.Fatalf("incident %s missing", icdID)
	}
	return inc
}
