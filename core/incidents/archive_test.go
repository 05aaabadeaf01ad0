package incidents

import (
	"context"
	"strings"
	"testing"
	"time"

	"campus-alert/core/store"
)

func TestArchiveIncidentMovesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedIncident(t, store.Incident{ICDID: "ICD001", Status: StatusResolved, ReporterID: "STU1"})
	// A resolution report that must be cleaned up with the incident.
	err := env.reports.Insert(ctx, &store.ResolutionReport{
		ResolvedID: "RSV00001",
		IncidentID: "ICD001",
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}

	res, err := env.svc.ArchiveIncident(ctx, Actor{AdminID: "ADM0001", Username: "dana"}, "ICD001", "term ended")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !res.OK || res.Warning != "" {
		t.Fatalf("archive result %+v", res)
	}

	if live, _ := env.incidents.Get(ctx, "ICD001"); live != nil {
		t.Fatalf("live row should be gone after archive")
	}
	archived, err := env.archive.ListIncidents(ctx, 0)
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected one archived incident, got %d (err %v)", len(archived), err)
	}
	rec := archived[0]
	if rec.ICDID != "ICD001" || rec.OriginalICDID != "ICD001" || rec.ArchiveReason != "term ended" {
		t.Fatalf("unexpected archive record %+v", rec)
	}
	if reports, _ := env.reports.List(ctx, 0); len(reports) != 0 {
		t.Fatalf("dependent reports should be deleted before archiving")
	}
	entries, _ := env.audit.ListForIncident(ctx, "ICD001")
	if len(entries) != 1 || entries[0].ActionType != store.AuditArchived {
		t.Fatalf("archive audit entry wrong: %+v", entries)
	}
}

func TestArchiveIncidentIDCollisionRemaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// The archive table already holds a row under this incident id.
	err := env.archive.InsertIncident(ctx, &store.ArchivedIncident{
		ArchiveID:     "pre-existing",
		ICDID:         "ICD100",
		OriginalICDID: "ICD100",
		Incident:      store.Incident{ICDID: "ICD100", Status: StatusResolved},
		ArchivedAt:    time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed archive row: %v", err)
	}
	env.seedIncident(t, store.Incident{ICDID: "ICD100", Status: StatusCancelled})

	res, err := env.svc.ArchiveIncident(ctx, Actor{AdminID: "ADM0001"}, "ICD100", "")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !res.OK {
		t.Fatalf("archive denied: %s", res.Message)
	}
	if !strings.Contains(res.Message, "archived under id ICD100_ARCHIVED_") {
		t.Fatalf("remap should be reported in the message, got %q", res.Message)
	}

	archived, _ := env.archive.ListIncidents(ctx, 0)
	if len(archived) != 2 {
		t.Fatalf("expected 2 archive rows, got %d", len(archived))
	}
	found := false
	for _, rec := range archived {
		if rec.OriginalICDID == "ICD100" && strings.HasPrefix(rec.ICDID, "ICD100_ARCHIVED_") {
			found = true
		}
	}
	if !found {
		t.Fatalf("remapped archive row missing: %+v", archived)
	}
}

func TestDeleteIncidentRemovesDependents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedIncident(t, store.Incident{ICDID: "ICD050", Status: StatusCancelled})
	err := env.reports.Insert(ctx, &store.ResolutionReport{
		ResolvedID: "RSV00050",
		IncidentID: "ICD050",
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
	if err := env.chat.Insert(ctx, &store.ChatMessage{IncidentID: "ICD050", SenderID: "ADM0001", Body: "standing down"}); err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	res, err := env.svc.DeleteIncident(ctx, Actor{AdminID: "ADM0001"}, "ICD050")
	if err != nil || !res.OK {
		t.Fatalf("delete: %v %+v", err, res)
	}
	if live, _ := env.incidents.Get(ctx, "ICD050"); live != nil {
		t.Fatalf("incident row should be gone")
	}
	if reports, _ := env.reports.List(ctx, 0); len(reports) != 0 {
		t.Fatalf("dependent report should be gone")
	}
	if msgs, _ := env.chat.ListForIncident(ctx, "ICD050", 0); len(msgs) != 0 {
		t.Fatalf("chat messages should be gone")
	}
	// The audit trail keeps the deletion on record.
	entries, _ := env.audit.ListForIncident(ctx, "ICD050")
	if len(entries) != 1 || entries[0].ActionType != store.AuditDeleted {
		t.Fatalf("delete audit entry wrong: %+v", entries)
	}

	if res, err := env.svc.DeleteIncident(ctx, Actor{AdminID: "ADM0001"}, "ICD050"); err != nil || res.OK {
		t.Fatalf("second delete should be refused, got %v %+v", err, res)
	}
}

func TestRestoreIncidentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedIncident(t, store.Incident{ICDID: "ICD200", Status: StatusResolved, Building: "Gym"})

	if _, err := env.svc.ArchiveIncident(ctx, Actor{AdminID: "ADM0001"}, "ICD200", ""); err != nil {
		t.Fatalf("archive: %v", err)
	}
	archived, _ := env.archive.ListIncidents(ctx, 0)
	if len(archived) != 1 {
		t.Fatalf("archive row missing")
	}

	res, err := env.svc.RestoreIncident(ctx, Actor{AdminID: "ADM0001"}, archived[0].ArchiveID)
	if err != nil || !res.OK {
		t.Fatalf("restore: %v %+v", err, res)
	}
	inc := env.mustGet(t, "ICD200")
	if inc.Building != "Gym" || inc.Status != StatusResolved {
		t.Fatalf("restored incident lost data: %+v", inc)
	}
	if rows, _ := env.archive.ListIncidents(ctx, 0); len(rows) != 0 {
		t.Fatalf("archive row should be removed after restore")
	}
}

func TestRestoreIncidentRemapsWhenOccupied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedIncident(t, store.Incident{ICDID: "ICD201", Status: StatusResolved})
	if _, err := env.svc.ArchiveIncident(ctx, Actor{AdminID: "ADM0001"}, "ICD201", ""); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// A new incident has since claimed the original id.
	env.seedIncident(t, store.Incident{ICDID: "ICD201", Status: StatusActive})

	archived, _ := env.archive.ListIncidents(ctx, 0)
	res, err := env.svc.RestoreIncident(ctx, Actor{AdminID: "ADM0001"}, archived[0].ArchiveID)
	if err != nil || !res.OK {
		t.Fatalf("restore: %v %+v", err, res)
	}
	if !strings.Contains(res.Message, "was occupied") {
		t.Fatalf("remap should be reported, got %q", res.Message)
	}
	remappedID := "ICD201_ARCHIVED_" + archived[0].ArchiveID
	if restored, _ := env.incidents.Get(ctx, remappedID); restored == nil {
		t.Fatalf("restored incident missing under remapped id %s", remappedID)
	}
	// The occupant is untouched.
	if occupant := env.mustGet(t, "ICD201"); occupant.Status != StatusActive {
		t.Fatalf("occupant was modified: %+v", occupant)
	}
}

func TestArchiveAndRestoreStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedStudent(t, "STU1", "Maria Cruz", "maria@campus.test")

	res, err := env.svc.ArchiveStudent(ctx, Actor{AdminID: "ADM0001"}, "STU1", "graduated")
	if err != nil || !res.OK {
		t.Fatalf("archive student: %v %+v", err, res)
	}
	if live, _ := env.students.Get(ctx, "STU1"); live != nil {
		t.Fatalf("live student row should be gone")
	}

	users, _ := env.archive.ListUsers(ctx, store.ArchiveKindStudent, 0)
	if len(users) != 1 {
		t.Fatalf("archived user missing")
	}
	res, err = env.svc.RestoreStudent(ctx, Actor{AdminID: "ADM0001"}, users[0].ArchiveID)
	if err != nil || !res.OK {
		t.Fatalf("restore student: %v %+v", err, res)
	}
	restored, _ := env.students.Get(ctx, "STU1")
	if restored == nil || restored.FullName != "Maria Cruz" {
		t.Fatalf("restored student wrong: %+v", restored)
	}
}

func TestRestoreStudentUpdatesMatchingOccupant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedStudent(t, "STU2", "Jon Lim", "jon@campus.test")
	if _, err := env.svc.ArchiveStudent(ctx, Actor{AdminID: "ADM0001"}, "STU2", ""); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// The same person re-registered before the restore; same email, stale
	// profile.
	err := env.students.Insert(ctx, &store.Student{StudentID: "STU2", Email: "jon@campus.test", FullName: "J. Lim"})
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	users, _ := env.archive.ListUsers(ctx, store.ArchiveKindStudent, 0)
	res, err := env.svc.RestoreStudent(ctx, Actor{AdminID: "ADM0001"}, users[0].ArchiveID)
	if err != nil || !res.OK {
		t.Fatalf("restore: %v %+v", err, res)
	}
	restored, _ := env.students.Get(ctx, "STU2")
	if restored.FullName != "Jon Lim" {
		t.Fatalf("matching occupant should be updated in place, got %+v", restored)
	}
}

func TestRestoreStudentConflictsWithDifferentOccupant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedStudent(t, "STU3", "Ana Reyes", "ana@campus.test")
	if _, err := env.svc.ArchiveStudent(ctx, Actor{AdminID: "ADM0001"}, "STU3", ""); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// A different person now holds the id.
	err := env.students.Insert(ctx, &store.Student{StudentID: "STU3", UserID: "u-other", Username: "other", Email: "other@campus.test", FullName: "Someone Else"})
	if err != nil {
		t.Fatalf("insert occupant: %v", err)
	}

	users, _ := env.archive.ListUsers(ctx, store.ArchiveKindStudent, 0)
	res, err := env.svc.RestoreStudent(ctx, Actor{AdminID: "ADM0001"}, users[0].ArchiveID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.OK || !strings.Contains(res.Message, "occupied by a different student") {
		t.Fatalf("conflicting occupant should deny the restore, got %+v", res)
	}
	// The archive row survives a refused restore.
	if users, _ := env.archive.ListUsers(ctx, store.ArchiveKindStudent, 0); len(users) != 1 {
		t.Fatalf("archive row should remain after a refused restore")
	}
}

func TestArchiveAdminSelfDenied(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "ADM0001", "dana", "Dana Reyes")
	res, err := env.svc.ArchiveAdmin(context.Background(), Actor{AdminID: "ADM0001"}, "ADM0001", "")
	if err != nil {
		t.Fatalf("archive admin: %v", err)
	}
	if res.OK || !strings.Contains(res.Message, "your own account") {
		t.Fatalf("self-archive should be denied, got %+v", res)
	}
}

func TestArchiveAndRestoreAdminRemap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAdmin(t, "ADM0001", "dana", "Dana Reyes")
	env.seedAdmin(t, "ADM0002", "leo", "Leo Tan")

	res, err := env.svc.ArchiveAdmin(ctx, Actor{AdminID: "ADM0001"}, "ADM0002", "left the team")
	if err != nil || !res.OK {
		t.Fatalf("archive admin: %v %+v", err, res)
	}
	// Someone else is created under the freed id before the restore.
	env.seedAdmin(t, "ADM0002", "nina", "Nina Cho")

	users, _ := env.archive.ListUsers(ctx, store.ArchiveKindAdmin, 0)
	if len(users) != 1 {
		t.Fatalf("archived admin missing")
	}
	res, err = env.svc.RestoreAdmin(ctx, Actor{AdminID: "ADM0001"}, users[0].ArchiveID)
	if err != nil || !res.OK {
		t.Fatalf("restore admin: %v %+v", err, res)
	}
	if !strings.Contains(res.Message, "was occupied") {
		t.Fatalf("remap should be reported, got %q", res.Message)
	}
	remapped, _ := env.admins.Get(ctx, "ADM0002_ARCHIVED_"+users[0].ArchiveID)
	if remapped == nil || remapped.Username != "leo" {
		t.Fatalf("restored admin missing under remapped id: %+v", remapped)
	}
}
