package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditEntry is one append-only row of the incident audit trail.
type AuditEntry struct {
	ID           int64     `json:"id"`
	IncidentID   string    `json:"incident_id"`
	ActionType   string    `json:"action_type"`
	OldStatus    string    `json:"old_status,omitempty"`
	NewStatus    string    `json:"new_status,omitempty"`
	ChangedBy    string    `json:"changed_by"`
	ChangeReason string    `json:"change_reason,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

const (
	AuditStatusUpdated = "status_updated"
	AuditDispatchTeam  = "dispatch_team"
	AuditArchived      = "archived"
	AuditRestored      = "restored"
	AuditDeleted       = "deleted"
)

type AuditTrailStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
	ListForIncident(ctx context.Context, incidentID string) ([]AuditEntry, error)
	DeleteForIncident(ctx context.Context, incidentID string) error
}

type auditTrailStore struct {
	db *sql.DB
}

func NewAuditTrailStore(db *sql.DB) AuditTrailStore {
	return &auditTrailStore{db: db}
}

func (s *auditTrailStore) Append(ctx context.Context, e *AuditEntry) error {
	if e.ChangedAt.IsZero() {
		e.ChangedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_audit_trail(incident_id, action_type, old_status, new_status, changed_by, change_reason, changed_at)
		VALUES(?,?,?,?,?,?,?)`,
		strings.TrimSpace(e.IncidentID), strings.TrimSpace(e.ActionType), e.OldStatus, e.NewStatus,
		strings.TrimSpace(e.ChangedBy), strings.TrimSpace(e.ChangeReason), e.ChangedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (s *auditTrailStore) ListRecent(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `
		SELECT id, incident_id, action_type, old_status, new_status, changed_by, change_reason, changed_at
		FROM incident_audit_trail ORDER BY changed_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryEntries(ctx, query)
}

func (s *auditTrailStore) ListForIncident(ctx context.Context, incidentID string) ([]AuditEntry, error) {
	return s.queryEntries(ctx, `
		SELECT id, incident_id, action_type, old_status, new_status, changed_by, change_reason, changed_at
		FROM incident_audit_trail WHERE incident_id=? ORDER BY changed_at DESC, id DESC`, strings.TrimSpace(incidentID))
}

func (s *auditTrailStore) DeleteForIncident(ctx context.Context, incidentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM incident_audit_trail WHERE incident_id=?`, strings.TrimSpace(incidentID))
	return err
}

func (s *auditTrailStore) queryEntries(ctx context.Context, query string, args ...any) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.ActionType, &e.OldStatus, &e.NewStatus, &e.ChangedBy, &e.ChangeReason, &e.ChangedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// AuditLogStore records admin actions for the activity log pages, separate
// from the per-incident audit trail.
type AuditLogStore interface {
	Log(ctx context.Context, username, action, details string) error
	ListRecent(ctx context.Context, limit int) ([]AuditLogEntry, error)
}

type AuditLogEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type auditLogStore struct {
	db *sql.DB
}

func NewAuditLogStore(db *sql.DB) AuditLogStore {
	return &auditLogStore{db: db}
}

func (s *auditLogStore) Log(ctx context.Context, username, action, details string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`,
		strings.TrimSpace(username), strings.TrimSpace(action), details, time.Now().UTC())
	return err
}

func (s *auditLogStore) ListRecent(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	query := `SELECT id, username, action, COALESCE(details, ''), created_at FROM audit_log ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
