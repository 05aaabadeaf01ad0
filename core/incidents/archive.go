package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"campus-alert/core/store"
)

const archiveSuffix = "_ARCHIVED_"

// ArchiveIncident copies an incident into the archive table and removes the
// live row. The sequence is a best-effort saga, not a transaction: dependent
// resolution reports are deleted first (failure tolerated), then the archive
// copy is written, then the live row is removed. If the incident id already
// exists in the archive table a new id is synthesized and the remapping is
// reported in the message.
func (s *Service) ArchiveIncident(ctx context.Context, actor Actor, icdID, reason string) (ActionResult, error) {
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}

	now := time.Now().UTC()
	archivedID := inc.ICDID
	remapped := false
	if exists, err := s.archive.IncidentIDExists(ctx, inc.ICDID); err != nil {
		s.log.Errorf("archive id check for %s: %v", inc.ICDID, err)
	} else if exists {
		archivedID = inc.ICDID + archiveSuffix + now.Format("20060102150405")
		remapped = true
	}

	rec := &store.ArchivedIncident{
		ArchiveID:     newArchiveID(),
		ICDID:         archivedID,
		OriginalICDID: inc.ICDID,
		Incident:      *inc,
		ArchivedBy:    actor.AdminID,
		ArchiveReason: strings.TrimSpace(reason),
		ArchivedAt:    now,
	}

	res := ActionResult{OK: true}
	if err := s.reports.DeleteForIncident(ctx, inc.ICDID); err != nil {
		// Safe to continue; the report rows just linger.
		s.log.Errorf("report cleanup for %s: %v", inc.ICDID, err)
		res.Warning = joinWarnings(res.Warning, "resolution reports could not be cleaned up")
	}
	if err := s.chat.DeleteForIncident(ctx, inc.ICDID); err != nil {
		s.log.Errorf("chat cleanup for %s: %v", inc.ICDID, err)
		res.Warning = joinWarnings(res.Warning, "chat messages could not be cleaned up")
	}
	if err := s.archive.InsertIncident(ctx, rec); err != nil {
		return ActionResult{}, fmt.Errorf("archive incident %s: %w", inc.ICDID, err)
	}
	if err := s.incidents.Delete(ctx, inc.ICDID); err != nil {
		// The archive copy exists; restore detects and tolerates this.
		s.log.Errorf("live row delete for %s: %v", inc.ICDID, err)
		res.Warning = joinWarnings(res.Warning, "live incident row could not be removed")
	}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   inc.ICDID,
		ActionType:   store.AuditArchived,
		OldStatus:    NormalizeStatus(inc.Status),
		NewStatus:    NormalizeStatus(inc.Status),
		ChangedBy:    actor.AdminID,
		ChangeReason: strings.TrimSpace(reason),
		ChangedAt:    now,
	})

	if remapped {
		res.Message = fmt.Sprintf("incident %s archived under id %s", inc.ICDID, archivedID)
	} else {
		res.Message = fmt.Sprintf("incident %s archived", inc.ICDID)
	}
	return res, nil
}

// DeleteIncident permanently removes an incident and its dependent rows.
// Unlike archiving there is no copy to fall back on, so the live-row delete
// is a hard failure. The audit entry survives the delete on purpose.
func (s *Service) DeleteIncident(ctx context.Context, actor Actor, icdID string) (ActionResult, error) {
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}

	res := ActionResult{OK: true, Message: fmt.Sprintf("incident %s deleted", inc.ICDID)}
	if err := s.reports.DeleteForIncident(ctx, inc.ICDID); err != nil {
		s.log.Errorf("report cleanup for %s: %v", inc.ICDID, err)
		res.Warning = joinWarnings(res.Warning, "resolution reports could not be cleaned up")
	}
	if err := s.chat.DeleteForIncident(ctx, inc.ICDID); err != nil {
		s.log.Errorf("chat cleanup for %s: %v", inc.ICDID, err)
		res.Warning = joinWarnings(res.Warning, "chat messages could not be cleaned up")
	}
	if err := s.incidents.Delete(ctx, inc.ICDID); err != nil {
		return ActionResult{}, fmt.Errorf("delete incident %s: %w", inc.ICDID, err)
	}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID: inc.ICDID,
		ActionType: store.AuditDeleted,
		OldStatus:  NormalizeStatus(inc.Status),
		NewStatus:  NormalizeStatus(inc.Status),
		ChangedBy:  actor.AdminID,
		ChangedAt:  time.Now().UTC(),
	})
	return res, nil
}

// RestoreIncident moves an archived incident back into the live table. When
// the original id is already occupied a new id is synthesized from the
// archive id, with a timestamp suffix as a second fallback.
func (s *Service) RestoreIncident(ctx context.Context, actor Actor, archiveID string) (ActionResult, error) {
	rec, err := s.archive.GetIncident(ctx, archiveID)
	if err != nil {
		return ActionResult{}, err
	}
	if rec == nil {
		return denied("archived incident not found"), nil
	}

	now := time.Now().UTC()
	targetID := rec.OriginalICDID
	if targetID == "" {
		targetID = rec.ICDID
	}
	remapped := false
	if live, err := s.incidents.Get(ctx, targetID); err != nil {
		return ActionResult{}, err
	} else if live != nil {
		candidate := targetID + archiveSuffix + rec.ArchiveID
		if occupied, err := s.incidents.Get(ctx, candidate); err != nil {
			return ActionResult{}, err
		} else if occupied != nil {
			candidate = candidate + "_" + now.Format("20060102150405")
		}
		targetID = candidate
		remapped = true
	}

	inc := rec.Incident
	inc.ICDID = targetID
	if err := s.incidents.Insert(ctx, &inc); err != nil {
		return ActionResult{}, fmt.Errorf("restore incident %s: %w", rec.ArchiveID, err)
	}
	res := ActionResult{OK: true}
	if err := s.archive.DeleteIncident(ctx, rec.ArchiveID); err != nil {
		s.log.Errorf("archive row delete %s: %v", rec.ArchiveID, err)
		res.Warning = joinWarnings(res.Warning, "archive row could not be removed")
	}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   targetID,
		ActionType:   store.AuditRestored,
		OldStatus:    NormalizeStatus(inc.Status),
		NewStatus:    NormalizeStatus(inc.Status),
		ChangedBy:    actor.AdminID,
		ChangeReason: "restored from " + rec.ArchiveID,
		ChangedAt:    now,
	})

	if remapped {
		res.Message = fmt.Sprintf("incident restored under new id %s (original %s was occupied)", targetID, rec.OriginalICDID)
	} else {
		res.Message = fmt.Sprintf("incident %s restored", targetID)
	}
	return res, nil
}

// ArchiveStudent copies a student into the archived users table and removes
// the live row.
func (s *Service) ArchiveStudent(ctx context.Context, actor Actor, studentID, reason string) (ActionResult, error) {
	student, err := s.students.Get(ctx, studentID)
	if err != nil {
		return ActionResult{}, err
	}
	if student == nil {
		return denied("student not found"), nil
	}
	rec := &store.ArchivedUser{
		ArchiveID:     newArchiveID(),
		Kind:          store.ArchiveKindStudent,
		OriginalID:    student.StudentID,
		UserID:        student.UserID,
		Username:      student.Username,
		Email:         student.Email,
		FullName:      student.FullName,
		Phone:         student.Phone,
		ArchivedBy:    actor.AdminID,
		ArchiveReason: strings.TrimSpace(reason),
		ArchivedAt:    time.Now().UTC(),
	}
	if err := s.archive.InsertUser(ctx, rec); err != nil {
		return ActionResult{}, fmt.Errorf("archive student %s: %w", student.StudentID, err)
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("student %s archived", student.StudentID)}
	if err := s.students.Delete(ctx, student.StudentID); err != nil {
		s.log.Errorf("student delete %s: %v", student.StudentID, err)
		res.Warning = joinWarnings(res.Warning, "live student row could not be removed")
	}
	return res, nil
}

// RestoreStudent brings an archived student back. If the student id is
// already occupied and the occupant matches the archived identity (by
// user id, email or username) the live row is updated in place — the
// leftovers of a partial archive. A genuinely different student under the
// same id is a hard conflict.
func (s *Service) RestoreStudent(ctx context.Context, actor Actor, archiveID string) (ActionResult, error) {
	rec, err := s.archive.GetUser(ctx, archiveID)
	if err != nil {
		return ActionResult{}, err
	}
	if rec == nil || rec.Kind != store.ArchiveKindStudent {
		return denied("archived student not found"), nil
	}

	restored := &store.Student{
		StudentID: rec.OriginalID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		Email:     rec.Email,
		FullName:  rec.FullName,
		Phone:     rec.Phone,
	}

	existing, err := s.students.Get(ctx, rec.OriginalID)
	if err != nil {
		return ActionResult{}, err
	}
	switch {
	case existing == nil:
		if err := s.students.Insert(ctx, restored); err != nil {
			return ActionResult{}, fmt.Errorf("restore student %s: %w", rec.ArchiveID, err)
		}
	case sameStudentIdentity(existing, rec):
		if err := s.students.Update(ctx, restored); err != nil {
			return ActionResult{}, fmt.Errorf("restore student %s: %w", rec.ArchiveID, err)
		}
	default:
		return denied(fmt.Sprintf("student id %s is occupied by a different student", rec.OriginalID)), nil
	}

	res := ActionResult{OK: true, Message: fmt.Sprintf("student %s restored", rec.OriginalID)}
	if err := s.archive.DeleteUser(ctx, rec.ArchiveID); err != nil {
		s.log.Errorf("archived user delete %s: %v", rec.ArchiveID, err)
		res.Warning = joinWarnings(res.Warning, "archive row could not be removed")
	}
	return res, nil
}

// ArchiveAdmin copies an admin account into the archived users table and
// removes the live account.
func (s *Service) ArchiveAdmin(ctx context.Context, actor Actor, adminID, reason string) (ActionResult, error) {
	admin, err := s.admins.Get(ctx, adminID)
	if err != nil {
		return ActionResult{}, err
	}
	if admin == nil {
		return denied("admin not found"), nil
	}
	if admin.AdminID == actor.AdminID {
		return denied("you cannot archive your own account"), nil
	}
	rec := &store.ArchivedUser{
		ArchiveID:     newArchiveID(),
		Kind:          store.ArchiveKindAdmin,
		OriginalID:    admin.AdminID,
		Username:      admin.Username,
		Email:         admin.Email,
		FullName:      admin.FullName,
		Role:          admin.Role,
		PasswordHash:  admin.PasswordHash,
		Salt:          admin.Salt,
		ArchivedBy:    actor.AdminID,
		ArchiveReason: strings.TrimSpace(reason),
		ArchivedAt:    time.Now().UTC(),
	}
	if err := s.archive.InsertUser(ctx, rec); err != nil {
		return ActionResult{}, fmt.Errorf("archive admin %s: %w", admin.AdminID, err)
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("admin %s archived", admin.AdminID)}
	if err := s.admins.Delete(ctx, admin.AdminID); err != nil {
		s.log.Errorf("admin delete %s: %v", admin.AdminID, err)
		res.Warning = joinWarnings(res.Warning, "live admin row could not be removed")
	}
	return res, nil
}

// RestoreAdmin brings an archived admin account back, remapping the id when
// the original is occupied.
func (s *Service) RestoreAdmin(ctx context.Context, actor Actor, archiveID string) (ActionResult, error) {
	rec, err := s.archive.GetUser(ctx, archiveID)
	if err != nil {
		return ActionResult{}, err
	}
	if rec == nil || rec.Kind != store.ArchiveKindAdmin {
		return denied("archived admin not found"), nil
	}

	targetID := rec.OriginalID
	remapped := false
	if existing, err := s.admins.Get(ctx, targetID); err != nil {
		return ActionResult{}, err
	} else if existing != nil {
		targetID = targetID + archiveSuffix + rec.ArchiveID
		remapped = true
	}

	restored := &store.Admin{
		AdminID:      targetID,
		Username:     rec.Username,
		Email:        rec.Email,
		FullName:     rec.FullName,
		PasswordHash: rec.PasswordHash,
		Salt:         rec.Salt,
		Role:         rec.Role,
		Active:       true,
	}
	if err := s.admins.Create(ctx, restored); err != nil {
		return ActionResult{}, fmt.Errorf("restore admin %s: %w", rec.ArchiveID, err)
	}
	res := ActionResult{OK: true}
	if err := s.archive.DeleteUser(ctx, rec.ArchiveID); err != nil {
		s.log.Errorf("archived user delete %s: %v", rec.ArchiveID, err)
		res.Warning = joinWarnings(res.Warning, "archive row could not be removed")
	}
	if remapped {
		res.Message = fmt.Sprintf("admin restored under new id %s (original %s was occupied)", targetID, rec.OriginalID)
	} else {
		res.Message = fmt.Sprintf("admin %s restored", targetID)
	}
	return res, nil
}

func sameStudentIdentity(live *store.Student, archived *store.ArchivedUser) bool {
	match := func(a, b string) bool {
		a, b = strings.TrimSpace(a), strings.TrimSpace(b)
		return a != "" && strings.EqualFold(a, b)
	}
	return match(live.UserID, archived.UserID) ||
		match(live.Email, archived.Email) ||
		match(live.Username, archived.Username)
}

func newArchiveID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("arch-%d", time.Now().UnixNano())
	}
	return id.String()
}
