package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-alert/core/store"
	"campus-alert/core/utils"
)

// Notifier delivers a message to a reporter. Delivery failures never block
// the state transition that triggered them.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Actor identifies the admin performing an action. It is threaded explicitly
// through every call; the service never reads identity from ambient state.
type Actor struct {
	AdminID  string
	Username string
	Name     string
}

// Service owns the incident lifecycle: transition validation, authorization,
// audit logging, resolution reports and archival.
type Service struct {
	incidents store.IncidentsStore
	audit     store.AuditTrailStore
	reports   store.ReportsStore
	archive   store.ArchiveStore
	admins    store.AdminsStore
	students  store.StudentsStore
	chat      store.ChatStore
	notifier  Notifier
	log       *utils.Logger

	resolvedIDPrefix string
	feedLimit        int
}

type ServiceDeps struct {
	Incidents store.IncidentsStore
	Audit     store.AuditTrailStore
	Reports   store.ReportsStore
	Archive   store.ArchiveStore
	Admins    store.AdminsStore
	Students  store.StudentsStore
	Chat      store.ChatStore
	Notifier  Notifier
	Logger    *utils.Logger

	ResolvedIDPrefix string
	FeedLimit        int
}

func NewService(deps ServiceDeps) *Service {
	prefix := strings.TrimSpace(deps.ResolvedIDPrefix)
	if prefix == "" {
		prefix = "RSV"
	}
	limit := deps.FeedLimit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &Service{
		incidents:        deps.Incidents,
		audit:            deps.Audit,
		reports:          deps.Reports,
		archive:          deps.Archive,
		admins:           deps.Admins,
		students:         deps.Students,
		chat:             deps.Chat,
		notifier:         deps.Notifier,
		log:              deps.Logger,
		resolvedIDPrefix: prefix,
		feedLimit:        limit,
	}
}

// ActionResult reports the outcome of a transition. Warning carries
// secondary failures (audit append, report persistence) that did not undo
// the transition itself.
type ActionResult struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message"`
	Warning    string `json:"warning,omitempty"`
	ResolvedID string `json:"resolved_id,omitempty"`
}

func denied(reason string) ActionResult {
	return ActionResult{OK: false, Message: reason}
}

// MarkPending claims an open incident for the acting admin.
func (s *Service) MarkPending(ctx context.Context, actor Actor, icdID string) (ActionResult, error) {
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}
	if d := CanEdit(inc, actor.AdminID); !d.Allowed {
		return denied(d.Reason), nil
	}
	prior := NormalizeStatus(inc.Status)
	now := time.Now().UTC()
	if err := s.incidents.MarkPending(ctx, inc.ICDID, actor.AdminID, now, actor.AdminID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return denied(fmt.Sprintf("incident %s is no longer open", inc.ICDID)), nil
		}
		return ActionResult{}, err
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("incident %s marked pending", inc.ICDID)}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID: inc.ICDID,
		ActionType: store.AuditStatusUpdated,
		OldStatus:  prior,
		NewStatus:  StatusPending,
		ChangedBy:  actor.AdminID,
		ChangedAt:  now,
	})
	s.notifyReporter(ctx, inc, "Incident update",
		fmt.Sprintf("Your report %s is now being handled by a responder.", inc.ICDID))
	return res, nil
}

// MarkResolved closes an incident and builds its resolution report. The
// summary is required; report persistence failure is reported as a warning,
// not as a failure of the resolution.
func (s *Service) MarkResolved(ctx context.Context, actor Actor, icdID, summary string) (ActionResult, error) {
	if strings.TrimSpace(summary) == "" {
		return denied("a resolution summary is required"), nil
	}
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}
	if d := CanEdit(inc, actor.AdminID); !d.Allowed {
		return denied(d.Reason), nil
	}
	prior := NormalizeStatus(inc.Status)
	now := time.Now().UTC()
	if err := s.incidents.MarkResolved(ctx, inc.ICDID, now, actor.AdminID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return denied(fmt.Sprintf("incident %s is no longer open", inc.ICDID)), nil
		}
		return ActionResult{}, err
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("incident %s resolved", inc.ICDID)}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   inc.ICDID,
		ActionType:   store.AuditStatusUpdated,
		OldStatus:    prior,
		NewStatus:    StatusResolved,
		ChangedBy:    actor.AdminID,
		ChangeReason: strings.TrimSpace(summary),
		ChangedAt:    now,
	})

	report, warn := s.buildAndStoreReport(ctx, actor, inc, prior, now, summary)
	if warn != "" {
		res.Warning = joinWarnings(res.Warning, warn)
	}
	if report != nil {
		res.ResolvedID = report.ResolvedID
	}
	s.notifyReporter(ctx, inc, "Incident resolved",
		fmt.Sprintf("Your report %s has been resolved: %s", inc.ICDID, strings.TrimSpace(summary)))
	return res, nil
}

// MarkCancelled closes an incident without a resolution report.
func (s *Service) MarkCancelled(ctx context.Context, actor Actor, icdID, reason string) (ActionResult, error) {
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}
	if d := CanEdit(inc, actor.AdminID); !d.Allowed {
		return denied(d.Reason), nil
	}
	prior := NormalizeStatus(inc.Status)
	now := time.Now().UTC()
	if err := s.incidents.MarkCancelled(ctx, inc.ICDID, now, actor.AdminID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return denied(fmt.Sprintf("incident %s is no longer open", inc.ICDID)), nil
		}
		return ActionResult{}, err
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("incident %s cancelled", inc.ICDID)}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   inc.ICDID,
		ActionType:   store.AuditStatusUpdated,
		OldStatus:    prior,
		NewStatus:    StatusCancelled,
		ChangedBy:    actor.AdminID,
		ChangeReason: strings.TrimSpace(reason),
		ChangedAt:    now,
	})
	s.notifyReporter(ctx, inc, "Incident cancelled",
		fmt.Sprintf("Your report %s has been cancelled.", inc.ICDID))
	return res, nil
}

// Dispatch assigns a responder to an open incident. The acting admin may only
// dispatch incidents that are unassigned or assigned to themselves.
func (s *Service) Dispatch(ctx context.Context, actor Actor, icdID, responderID string) (ActionResult, error) {
	responderID = strings.TrimSpace(responderID)
	if responderID == "" {
		responderID = actor.AdminID
	}
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied("incident not found"), nil
	}
	if d := CanEdit(inc, actor.AdminID); !d.Allowed {
		return denied(d.Reason), nil
	}
	prior := NormalizeStatus(inc.Status)
	now := time.Now().UTC()
	if err := s.incidents.MarkPending(ctx, inc.ICDID, responderID, now, actor.AdminID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return denied(fmt.Sprintf("incident %s is no longer open", inc.ICDID)), nil
		}
		return ActionResult{}, err
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("responder %s dispatched to incident %s", responderID, inc.ICDID)}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   inc.ICDID,
		ActionType:   store.AuditDispatchTeam,
		OldStatus:    prior,
		NewStatus:    StatusPending,
		ChangedBy:    actor.AdminID,
		ChangeReason: "responder " + responderID,
		ChangedAt:    now,
	})
	s.notifyReporter(ctx, inc, "Responder dispatched",
		fmt.Sprintf("A responder has been dispatched for your report %s.", inc.ICDID))
	return res, nil
}

// BulkStatusUpdate forces an incident into a target status, resetting all
// per-status timestamps first. Unlike the single-action transitions it also
// applies to closed incidents; authorization still runs for open ones.
func (s *Service) BulkStatusUpdate(ctx context.Context, actor Actor, icdIDs []string, status string) ([]ActionResult, error) {
	target := NormalizeStatus(status)
	if target == "" {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	results := make([]ActionResult, 0, len(icdIDs))
	for _, icdID := range icdIDs {
		res, err := s.bulkUpdateOne(ctx, actor, icdID, target)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) bulkUpdateOne(ctx context.Context, actor Actor, icdID, target string) (ActionResult, error) {
	inc, err := s.incidents.Get(ctx, icdID)
	if err != nil {
		return ActionResult{}, err
	}
	if inc == nil {
		return denied(fmt.Sprintf("incident %s not found", strings.TrimSpace(icdID))), nil
	}
	if IsOpen(inc.Status) {
		if d := CanEdit(inc, actor.AdminID); !d.Allowed {
			return denied(d.Reason), nil
		}
	}
	prior := NormalizeStatus(inc.Status)
	if prior == target {
		return denied(fmt.Sprintf("incident %s is already %s", inc.ICDID, target)), nil
	}
	now := time.Now().UTC()
	if err := s.incidents.BulkUpdateStatus(ctx, inc.ICDID, target, now, actor.AdminID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return denied(fmt.Sprintf("incident %s not found", inc.ICDID)), nil
		}
		return ActionResult{}, err
	}
	res := ActionResult{OK: true, Message: fmt.Sprintf("incident %s set to %s", inc.ICDID, target)}
	s.appendAudit(ctx, &res, &store.AuditEntry{
		IncidentID:   inc.ICDID,
		ActionType:   store.AuditStatusUpdated,
		OldStatus:    prior,
		NewStatus:    target,
		ChangedBy:    actor.AdminID,
		ChangeReason: "bulk update",
		ChangedAt:    now,
	})
	return res, nil
}

// appendAudit records a trail entry. Failure is downgraded to a warning; the
// transition it describes has already been committed.
func (s *Service) appendAudit(ctx context.Context, res *ActionResult, e *store.AuditEntry) {
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Errorf("audit append for %s: %v", e.IncidentID, err)
		res.Warning = joinWarnings(res.Warning, "audit trail entry could not be recorded")
	}
}

func (s *Service) notifyReporter(ctx context.Context, inc *store.Incident, subject, body string) {
	if s.notifier == nil || strings.TrimSpace(inc.ReporterID) == "" {
		return
	}
	student, err := s.students.Get(ctx, inc.ReporterID)
	if err != nil || student == nil || strings.TrimSpace(student.Email) == "" {
		if err != nil {
			s.log.Errorf("reporter lookup for %s: %v", inc.ICDID, err)
		}
		return
	}
	if err := s.notifier.Send(ctx, student.Email, subject, body); err != nil {
		s.log.Errorf("notify reporter %s for %s: %v", student.StudentID, inc.ICDID, err)
	}
}

func joinWarnings(existing, extra string) string {
	if existing == "" {
		return extra
	}
	if extra == "" {
		return existing
	}
	return existing + "; " + extra
}
