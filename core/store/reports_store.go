package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResolutionReport is the closure record written when an incident is marked
// resolved. It is persisted independently of the incident row and survives
// archival of the incident.
type ResolutionReport struct {
	ResolvedID      string         `json:"resolved_id"`
	IncidentID      string         `json:"incident_id"`
	StatusBefore    string         `json:"status_before"`
	StatusAfter     string         `json:"status_after"`
	StudentID       string         `json:"student_id,omitempty"`
	StudentName     string         `json:"student_name,omitempty"`
	AdminID         string         `json:"admin_id,omitempty"`
	AdminName       string         `json:"admin_name,omitempty"`
	ReportedAt      *time.Time     `json:"reported_at,omitempty"`
	ResolvedAt      time.Time      `json:"resolved_at"`
	ResponseMinutes *float64       `json:"response_minutes,omitempty"`
	Summary         string         `json:"summary"`
	SummaryDetails  SummaryDetails `json:"summary_details"`
	CreatedAt       time.Time      `json:"created_at"`
}

type SummaryDetails struct {
	Student  string `json:"student,omitempty"`
	Admin    string `json:"admin,omitempty"`
	Location string `json:"location,omitempty"`
	Category string `json:"category,omitempty"`
}

type ReportsStore interface {
	Insert(ctx context.Context, r *ResolutionReport) error
	Get(ctx context.Context, resolvedID string) (*ResolutionReport, error)
	LatestResolvedID(ctx context.Context) (string, error)
	List(ctx context.Context, limit int) ([]ResolutionReport, error)
	DeleteForIncident(ctx context.Context, incidentID string) error
}

type reportsStore struct {
	db *sql.DB
}

func NewReportsStore(db *sql.DB) ReportsStore {
	return &reportsStore{db: db}
}

const reportColumns = `resolved_id, incident_id, status_before, status_after, student_id, student_name, admin_id, admin_name, reported_at, resolved_at, response_minutes, summary, summary_json, created_at`

func (s *reportsStore) Insert(ctx context.Context, r *ResolutionReport) error {
	if strings.TrimSpace(r.ResolvedID) == "" {
		return errors.New("resolved_id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	details, err := json.Marshal(r.SummaryDetails)
	if err != nil {
		details = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolved_incidents(`+reportColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(r.ResolvedID), strings.TrimSpace(r.IncidentID), r.StatusBefore, r.StatusAfter,
		r.StudentID, r.StudentName, r.AdminID, r.AdminName,
		nullableTime(r.ReportedAt), r.ResolvedAt.UTC(), nullableFloat(r.ResponseMinutes),
		r.Summary, string(details), r.CreatedAt.UTC())
	return err
}

func (s *reportsStore) Get(ctx context.Context, resolvedID string) (*ResolutionReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM resolved_incidents WHERE resolved_id=?`, strings.TrimSpace(resolvedID))
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// LatestResolvedID returns the resolved id of the most recently created
// report, or "" when none exist. Ordering is by creation time, matching how
// the id counter is derived.
func (s *reportsStore) LatestResolvedID(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT resolved_id FROM resolved_incidents ORDER BY created_at DESC, resolved_id DESC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (s *reportsStore) List(ctx context.Context, limit int) ([]ResolutionReport, error) {
	query := `SELECT ` + reportColumns + ` FROM resolved_incidents ORDER BY created_at DESC, resolved_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ResolutionReport
	for rows.Next() {
		r, err := scanReportRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *r)
	}
	return res, rows.Err()
}

func (s *reportsStore) DeleteForIncident(ctx context.Context, incidentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resolved_incidents WHERE incident_id=?`, strings.TrimSpace(incidentID))
	return err
}

func scanReportInto(sc rowScanner) (*ResolutionReport, error) {
	var r ResolutionReport
	var reported sql.NullTime
	var minutes sql.NullFloat64
	var detailsRaw string
	if err := sc.Scan(&r.ResolvedID, &r.IncidentID, &r.StatusBefore, &r.StatusAfter, &r.StudentID, &r.StudentName,
		&r.AdminID, &r.AdminName, &reported, &r.ResolvedAt, &minutes, &r.Summary, &detailsRaw, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ReportedAt = timePtr(reported)
	r.ResponseMinutes = floatPtr(minutes)
	_ = json.Unmarshal([]byte(detailsRaw), &r.SummaryDetails)
	return &r, nil
}

func scanReport(row *sql.Row) (*ResolutionReport, error) {
	return scanReportInto(row)
}

func scanReportRows(rows *sql.Rows) (*ResolutionReport, error) {
	return scanReportInto(rows)
}
