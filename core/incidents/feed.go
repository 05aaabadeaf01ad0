package incidents

import (
	"context"
	"sort"
	"strings"
	"time"

	"campus-alert/core/store"
	"campus-alert/core/utils"
)

const (
	defaultFeedLimit = 60
	minAuditFetch    = 120

	EventReported     = "Reported"
	EventStatusChange = "Status Change"
)

// ActivityEvent is one row of the reconstructed activity feed. Events are
// derived per request from incidents and the audit trail; nothing here is
// persisted.
type ActivityEvent struct {
	IncidentID string    `json:"incident_id"`
	EventType  string    `json:"event_type"`
	EventLabel string    `json:"event_label"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Actor      string    `json:"actor"`
	ActorRole  string    `json:"actor_role"`
	Instant    time.Time `json:"instant"`
}

// sentinelInstant sorts events with no usable timestamp to the very end of a
// descending feed.
var sentinelInstant = time.Unix(0, 0).UTC()

// ActivityFeed reconstructs a unified, deduplicated, time-ordered feed from
// three layers: incident creation events, status timestamps inferred from
// the incident rows, and authoritative audit-trail entries. Collaborator
// failures degrade to partial output; the feed never fails outright.
func (s *Service) ActivityFeed(ctx context.Context, limit int) (events []ActivityEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("activity feed panic: %v", r)
			events = []ActivityEvent{}
		}
	}()
	if limit <= 0 {
		limit = s.feedLimit
	}

	var incs []store.Incident
	err := utils.Retry(ctx, func() error {
		var err error
		incs, err = s.incidents.List(ctx, store.IncidentFilter{})
		return err
	})
	if err != nil {
		s.log.Errorf("activity feed incidents: %v", err)
		return []ActivityEvent{}
	}

	auditFetch := limit * 3
	if auditFetch < minAuditFetch {
		auditFetch = minAuditFetch
	}
	var entries []store.AuditEntry
	if err := utils.Retry(ctx, func() error {
		var err error
		entries, err = s.audit.ListRecent(ctx, auditFetch)
		return err
	}); err != nil {
		// Degrade to the inferred layer alone.
		s.log.Errorf("activity feed audit trail: %v", err)
		entries = nil
	}

	studentNames := s.lookupStudentNames(ctx, incs)
	adminNames := s.lookupAdminNames(ctx, incs, entries)

	seen := map[feedKey]struct{}{}
	add := func(ev ActivityEvent) {
		key := feedKey{
			incidentID: ev.IncidentID,
			eventType:  ev.EventType,
			instant:    utils.InstantKey(&ev.Instant),
			status:     ev.NewStatus,
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		events = append(events, ev)
	}

	// Layer 1: one Reported event per incident.
	for i := range incs {
		inc := &incs[i]
		instant := sentinelInstant
		if t := utils.ParseInstant(inc.ReportedAt); t != nil {
			instant = *t
		}
		add(ActivityEvent{
			IncidentID: inc.ICDID,
			EventType:  EventReported,
			EventLabel: "Incident reported",
			NewStatus:  StatusActive,
			Actor:      nameOr(studentNames, inc.ReporterID),
			ActorRole:  "student",
			Instant:    instant,
		})
	}

	// Layer 2: status changes inferred from the incident's own timestamps.
	// Fallback for incidents with no audit-trail coverage; old statuses are
	// heuristic.
	for i := range incs {
		inc := &incs[i]
		actor := nameOr(adminNames, inc.AssignedResponderID)
		priorForClose := StatusActive
		if inc.PendingAt != nil {
			priorForClose = StatusPending
		}
		if t := utils.ParseInstant(inc.PendingAt); t != nil {
			add(statusEvent(inc.ICDID, StatusActive, StatusPending, actor, *t))
		}
		if t := utils.ParseInstant(inc.ResolvedAt); t != nil {
			add(statusEvent(inc.ICDID, priorForClose, StatusResolved, actor, *t))
		}
		if t := utils.ParseInstant(inc.CancelledAt); t != nil {
			add(statusEvent(inc.ICDID, priorForClose, StatusCancelled, actor, *t))
		}
	}

	// Layer 3: authoritative audit-trail entries.
	for _, e := range entries {
		if e.ActionType != store.AuditStatusUpdated && e.ActionType != store.AuditDispatchTeam {
			continue
		}
		instant := sentinelInstant
		if t := utils.ParseInstant(e.ChangedAt); t != nil {
			instant = *t
		}
		add(statusEvent(e.IncidentID, NormalizeStatus(e.OldStatus), NormalizeStatus(e.NewStatus),
			nameOr(adminNames, e.ChangedBy), instant))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Instant.After(events[j].Instant)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []ActivityEvent{}
	}
	return events
}

type feedKey struct {
	incidentID string
	eventType  string
	instant    string
	status     string
}

func statusEvent(incidentID, oldStatus, newStatus, actor string, at time.Time) ActivityEvent {
	return ActivityEvent{
		IncidentID: incidentID,
		EventType:  EventStatusChange,
		EventLabel: "Status changed to " + newStatus,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Actor:      actor,
		ActorRole:  "admin",
		Instant:    at,
	}
}

func (s *Service) lookupStudentNames(ctx context.Context, incs []store.Incident) map[string]string {
	var ids []string
	for i := range incs {
		ids = append(ids, incs[i].ReporterID)
	}
	names, err := s.students.GetNames(ctx, ids)
	if err != nil {
		s.log.Errorf("activity feed student names: %v", err)
	}
	return names
}

func (s *Service) lookupAdminNames(ctx context.Context, incs []store.Incident, entries []store.AuditEntry) map[string]string {
	var ids []string
	for i := range incs {
		ids = append(ids, incs[i].AssignedResponderID, incs[i].StatusUpdatedBy)
	}
	for _, e := range entries {
		ids = append(ids, e.ChangedBy)
	}
	names, err := s.admins.GetNames(ctx, ids)
	if err != nil {
		s.log.Errorf("activity feed admin names: %v", err)
	}
	return names
}

func nameOr(names map[string]string, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "system"
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
