package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrConflict = errors.New("conflict")

// Incident mirrors one row of the incidents table. The three per-status
// timestamps are remnants of prior transitions and are only reset together
// by the bulk status-update path.
type Incident struct {
	ICDID               string     `json:"icd_id"`
	Category            string     `json:"category"`
	Description         string     `json:"description"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	Building            string     `json:"building,omitempty"`
	Floor               string     `json:"floor,omitempty"`
	Room                string     `json:"room,omitempty"`
	Priority            string     `json:"priority"`
	ReporterID          string     `json:"reporter_id"`
	AssignedResponderID string     `json:"assigned_responder_id,omitempty"`
	Status              string     `json:"status"`
	ReportedAt          *time.Time `json:"reported_at,omitempty"`
	PendingAt           *time.Time `json:"pending_at,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	StatusUpdatedAt     *time.Time `json:"status_updated_at,omitempty"`
	StatusUpdatedBy     string     `json:"status_updated_by,omitempty"`
}

type IncidentFilter struct {
	Search     string
	Status     string
	StatusIn   []string
	Category   string
	ReporterID string
	AssignedTo string
	Limit      int
	Offset     int
}

type IncidentsStore interface {
	Insert(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, icdID string) (*Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	MarkPending(ctx context.Context, icdID, responderID string, at time.Time, by string) error
	MarkResolved(ctx context.Context, icdID string, at time.Time, by string) error
	MarkCancelled(ctx context.Context, icdID string, at time.Time, by string) error
	BulkUpdateStatus(ctx context.Context, icdID, status string, at time.Time, by string) error
	Delete(ctx context.Context, icdID string) error
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Incident, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `icd_id, category, description, latitude, longitude, building, floor, room, priority, reporter_id, assigned_responder_id, status, reported_at, pending_at, resolved_at, cancelled_at, status_updated_at, status_updated_by`

func (s *incidentsStore) Insert(ctx context.Context, inc *Incident) error {
	if strings.TrimSpace(inc.ICDID) == "" {
		return errors.New("icd_id required")
	}
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = "active"
	}
	if strings.TrimSpace(inc.Priority) == "" {
		inc.Priority = "normal"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents(`+incidentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inc.ICDID, strings.TrimSpace(inc.Category), inc.Description, nullableFloat(inc.Latitude), nullableFloat(inc.Longitude),
		strings.TrimSpace(inc.Building), strings.TrimSpace(inc.Floor), strings.TrimSpace(inc.Room), inc.Priority,
		strings.TrimSpace(inc.ReporterID), strings.TrimSpace(inc.AssignedResponderID), inc.Status,
		nullableTime(inc.ReportedAt), nullableTime(inc.PendingAt), nullableTime(inc.ResolvedAt), nullableTime(inc.CancelledAt),
		nullableTime(inc.StatusUpdatedAt), strings.TrimSpace(inc.StatusUpdatedBy))
	return err
}

func (s *incidentsStore) Get(ctx context.Context, icdID string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE icd_id=?`, strings.TrimSpace(icdID))
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inc, nil
}

func (s *incidentsStore) List(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if len(filter.StatusIn) > 0 {
		var in []string
		for _, raw := range filter.StatusIn {
			if strings.TrimSpace(raw) != "" {
				in = append(in, strings.ToLower(strings.TrimSpace(raw)))
			}
		}
		if len(in) > 0 {
			clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders(len(in))))
			for _, val := range in {
				args = append(args, val)
			}
		}
	} else if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, strings.ToLower(filter.Status))
	}
	if filter.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, filter.Category)
	}
	if filter.ReporterID != "" {
		clauses = append(clauses, "reporter_id=?")
		args = append(args, filter.ReporterID)
	}
	if filter.AssignedTo != "" {
		clauses = append(clauses, "assigned_responder_id=?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(icd_id LIKE ? OR description LIKE ? OR building LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q, q)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY reported_at DESC, icd_id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) MarkPending(ctx context.Context, icdID, responderID string, at time.Time, by string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='pending', pending_at=?, assigned_responder_id=?, status_updated_at=?, status_updated_by=?
		WHERE icd_id=? AND status IN ('active','pending')`,
		at.UTC(), strings.TrimSpace(responderID), at.UTC(), strings.TrimSpace(by), strings.TrimSpace(icdID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) MarkResolved(ctx context.Context, icdID string, at time.Time, by string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='resolved', resolved_at=?, status_updated_at=?, status_updated_by=?
		WHERE icd_id=? AND status IN ('active','pending')`,
		at.UTC(), at.UTC(), strings.TrimSpace(by), strings.TrimSpace(icdID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) MarkCancelled(ctx context.Context, icdID string, at time.Time, by string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='cancelled', cancelled_at=?, status_updated_at=?, status_updated_by=?
		WHERE icd_id=? AND status IN ('active','pending')`,
		at.UTC(), at.UTC(), strings.TrimSpace(by), strings.TrimSpace(icdID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

// BulkUpdateStatus nulls all three per-status timestamps before setting the
// one matching the target status. Single-action transitions above leave the
// siblings in place; only the bulk path performs the full reset.
func (s *incidentsStore) BulkUpdateStatus(ctx context.Context, icdID, status string, at time.Time, by string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	column := ""
	switch status {
	case "pending":
		column = "pending_at"
	case "resolved":
		column = "resolved_at"
	case "cancelled":
		column = "cancelled_at"
	case "active":
	default:
		return fmt.Errorf("unknown status %q", status)
	}
	sets := []string{"status=?"}
	args := []any{status}
	for _, sibling := range []string{"pending_at", "resolved_at", "cancelled_at"} {
		if sibling != column {
			sets = append(sets, sibling+"=NULL")
		}
	}
	if column != "" {
		sets = append(sets, column+"=?")
		args = append(args, at.UTC())
	}
	sets = append(sets, "status_updated_at=?", "status_updated_by=?")
	args = append(args, at.UTC(), strings.TrimSpace(by))
	query := `UPDATE incidents SET ` + strings.Join(sets, ", ")
	query += ` WHERE icd_id=?`
	args = append(args, strings.TrimSpace(icdID))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) Delete(ctx context.Context, icdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE icd_id=?`, strings.TrimSpace(icdID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE status='pending' AND pending_at IS NOT NULL AND pending_at < ?
		ORDER BY pending_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncidentInto(sc rowScanner) (Incident, error) {
	var inc Incident
	var lat, lng sql.NullFloat64
	var reported, pending, resolved, cancelled, statusAt sql.NullTime
	err := sc.Scan(&inc.ICDID, &inc.Category, &inc.Description, &lat, &lng, &inc.Building, &inc.Floor, &inc.Room,
		&inc.Priority, &inc.ReporterID, &inc.AssignedResponderID, &inc.Status,
		&reported, &pending, &resolved, &cancelled, &statusAt, &inc.StatusUpdatedBy)
	if err != nil {
		return inc, err
	}
	inc.Latitude = floatPtr(lat)
	inc.Longitude = floatPtr(lng)
	inc.ReportedAt = timePtr(reported)
	inc.PendingAt = timePtr(pending)
	inc.ResolvedAt = timePtr(resolved)
	inc.CancelledAt = timePtr(cancelled)
	inc.StatusUpdatedAt = timePtr(statusAt)
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = "active"
	}
	return inc, nil
}

func scanIncident(row *sql.Row) (*Incident, error) {
	inc, err := scanIncidentInto(row)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func scanIncidentRows(rows *sql.Rows) (Incident, error) {
	return scanIncidentInto(rows)
}
