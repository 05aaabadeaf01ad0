package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ArchivedIncident is a full copy of an incident row plus archival metadata.
// ICDID may differ from OriginalICDID when the original key collided in the
// archive table.
type ArchivedIncident struct {
	ArchiveID     string    `json:"archive_id"`
	ICDID         string    `json:"icd_id"`
	OriginalICDID string    `json:"original_icd_id"`
	Incident      Incident  `json:"incident"`
	ArchivedBy    string    `json:"archived_by"`
	ArchiveReason string    `json:"archive_reason,omitempty"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// ArchivedUser covers both archived students and archived admins; Kind
// distinguishes them.
type ArchivedUser struct {
	ArchiveID     string    `json:"archive_id"`
	Kind          string    `json:"kind"`
	OriginalID    string    `json:"original_id"`
	UserID        string    `json:"user_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	Email         string    `json:"email,omitempty"`
	FullName      string    `json:"full_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role,omitempty"`
	PasswordHash  string    `json:"-"`
	Salt          string    `json:"-"`
	ArchivedBy    string    `json:"archived_by"`
	ArchiveReason string    `json:"archive_reason,omitempty"`
	ArchivedAt    time.Time `json:"archived_at"`
}

const (
	ArchiveKindStudent = "student"
	ArchiveKindAdmin   = "admin"
)

type ArchiveStore interface {
	InsertIncident(ctx context.Context, a *ArchivedIncident) error
	GetIncident(ctx context.Context, archiveID string) (*ArchivedIncident, error)
	ListIncidents(ctx context.Context, limit int) ([]ArchivedIncident, error)
	DeleteIncident(ctx context.Context, archiveID string) error
	IncidentIDExists(ctx context.Context, icdID string) (bool, error)

	InsertUser(ctx context.Context, a *ArchivedUser) error
	GetUser(ctx context.Context, archiveID string) (*ArchivedUser, error)
	ListUsers(ctx context.Context, kind string, limit int) ([]ArchivedUser, error)
	DeleteUser(ctx context.Context, archiveID string) error
}

type archiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) ArchiveStore {
	return &archiveStore{db: db}
}

const archivedIncidentColumns = `archive_id, icd_id, original_icd_id, category, description, latitude, longitude, building, floor, room, priority, reporter_id, assigned_responder_id, status, reported_at, pending_at, resolved_at, cancelled_at, status_updated_at, status_updated_by, archived_by, archive_reason, archived_at`

func (s *archiveStore) InsertIncident(ctx context.Context, a *ArchivedIncident) error {
	if strings.TrimSpace(a.ArchiveID) == "" {
		return errors.New("archive_id required")
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now().UTC()
	}
	inc := a.Incident
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_incidents(`+archivedIncidentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ArchiveID, strings.TrimSpace(a.ICDID), strings.TrimSpace(a.OriginalICDID),
		inc.Category, inc.Description, nullableFloat(inc.Latitude), nullableFloat(inc.Longitude),
		inc.Building, inc.Floor, inc.Room, inc.Priority, inc.ReporterID, inc.AssignedResponderID, inc.Status,
		nullableTime(inc.ReportedAt), nullableTime(inc.PendingAt), nullableTime(inc.ResolvedAt), nullableTime(inc.CancelledAt),
		nullableTime(inc.StatusUpdatedAt), inc.StatusUpdatedBy,
		strings.TrimSpace(a.ArchivedBy), strings.TrimSpace(a.ArchiveReason), a.ArchivedAt.UTC())
	return err
}

func (s *archiveStore) GetIncident(ctx context.Context, archiveID string) (*ArchivedIncident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+archivedIncidentColumns+` FROM archived_incidents WHERE archive_id=?`, strings.TrimSpace(archiveID))
	a, err := scanArchivedIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *archiveStore) ListIncidents(ctx context.Context, limit int) ([]ArchivedIncident, error) {
	query := `SELECT ` + archivedIncidentColumns + ` FROM archived_incidents ORDER BY archived_at DESC, archive_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ArchivedIncident
	for rows.Next() {
		a, err := scanArchivedIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func (s *archiveStore) DeleteIncident(ctx context.Context, archiveID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archived_incidents WHERE archive_id=?`, strings.TrimSpace(archiveID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *archiveStore) IncidentIDExists(ctx context.Context, icdID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_incidents WHERE icd_id=?`, strings.TrimSpace(icdID))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const archivedUserColumns = `archive_id, kind, original_id, user_id, username, email, full_name, phone, role, password_hash, salt, archived_by, archive_reason, archived_at`

func (s *archiveStore) InsertUser(ctx context.Context, a *ArchivedUser) error {
	if strings.TrimSpace(a.ArchiveID) == "" {
		return errors.New("archive_id required")
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_users(`+archivedUserColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ArchiveID, strings.ToLower(strings.TrimSpace(a.Kind)), strings.TrimSpace(a.OriginalID),
		a.UserID, a.Username, a.Email, a.FullName, a.Phone, a.Role, a.PasswordHash, a.Salt,
		strings.TrimSpace(a.ArchivedBy), strings.TrimSpace(a.ArchiveReason), a.ArchivedAt.UTC())
	return err
}

func (s *archiveStore) GetUser(ctx context.Context, archiveID string) (*ArchivedUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+archivedUserColumns+` FROM archived_users WHERE archive_id=?`, strings.TrimSpace(archiveID))
	a, err := scanArchivedUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *archiveStore) ListUsers(ctx context.Context, kind string, limit int) ([]ArchivedUser, error) {
	query := `SELECT ` + archivedUserColumns + ` FROM archived_users`
	var args []any
	if strings.TrimSpace(kind) != "" {
		query += ` WHERE kind=?`
		args = append(args, strings.ToLower(strings.TrimSpace(kind)))
	}
	query += ` ORDER BY archived_at DESC, archive_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ArchivedUser
	for rows.Next() {
		a, err := scanArchivedUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func (s *archiveStore) DeleteUser(ctx context.Context, archiveID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM archived_users WHERE archive_id=?`, strings.TrimSpace(archiveID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func scanArchivedIncident(sc rowScanner) (*ArchivedIncident, error) {
	var a ArchivedIncident
	var lat, lng sql.NullFloat64
	var reported, pending, resolved, cancelled, statusAt sql.NullTime
	inc := &a.Incident
	err := sc.Scan(&a.ArchiveID, &a.ICDID, &a.OriginalICDID,
		&inc.Category, &inc.Description, &lat, &lng, &inc.Building, &inc.Floor, &inc.Room,
		&inc.Priority, &inc.ReporterID, &inc.AssignedResponderID, &inc.Status,
		&reported, &pending, &resolved, &cancelled, &statusAt, &inc.StatusUpdatedBy,
		&a.ArchivedBy, &a.ArchiveReason, &a.ArchivedAt)
	if err != nil {
		return nil, err
	}
	inc.ICDID = a.ICDID
	inc.Latitude = floatPtr(lat)
	inc.Longitude = floatPtr(lng)
	inc.ReportedAt = timePtr(reported)
	inc.PendingAt = timePtr(pending)
	inc.ResolvedAt = timePtr(resolved)
	inc.CancelledAt = timePtr(cancelled)
	inc.StatusUpdatedAt = timePtr(statusAt)
	return &a, nil
}

func scanArchivedUser(sc rowScanner) (*ArchivedUser, error) {
	var a ArchivedUser
	err := sc.Scan(&a.ArchiveID, &a.Kind, &a.OriginalID, &a.UserID, &a.Username, &a.Email, &a.FullName,
		&a.Phone, &a.Role, &a.PasswordHash, &a.Salt, &a.ArchivedBy, &a.ArchiveReason, &a.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
