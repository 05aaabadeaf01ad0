package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type AdminRequest struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"full_name,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
}

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type AdminRequestsStore interface {
	Insert(ctx context.Context, r *AdminRequest) error
	Get(ctx context.Context, id int64) (*AdminRequest, error)
	ListPending(ctx context.Context, limit int) ([]AdminRequest, error)
	Decide(ctx context.Context, id int64, status, decidedBy string, at time.Time) error
}

type adminRequestsStore struct {
	db *sql.DB
}

func NewAdminRequestsStore(db *sql.DB) AdminRequestsStore {
	return &adminRequestsStore{db: db}
}

const adminRequestColumns = `id, email, username, full_name, reason, status, requested_at, decided_at, decided_by`

func (s *adminRequestsStore) Insert(ctx context.Context, r *AdminRequest) error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Email) == "" {
		return errors.New("username and email required")
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	r.Status = RequestPending
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_requests(email, username, full_name, reason, status, requested_at, decided_by)
		VALUES(?,?,?,?,?,?,'')`,
		strings.TrimSpace(r.Email), strings.ToLower(strings.TrimSpace(r.Username)),
		strings.TrimSpace(r.FullName), strings.TrimSpace(r.Reason), r.Status, r.RequestedAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return nil
}

func (s *adminRequestsStore) Get(ctx context.Context, id int64) (*AdminRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminRequestColumns+` FROM admin_requests WHERE id=?`, id)
	r, err := scanAdminRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (s *adminRequestsStore) ListPending(ctx context.Context, limit int) ([]AdminRequest, error) {
	query := `SELECT ` + adminRequestColumns + ` FROM admin_requests WHERE status=? ORDER BY requested_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, RequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AdminRequest
	for rows.Next() {
		r, err := scanAdminRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *r)
	}
	return res, rows.Err()
}

// Decide flips a pending request exactly once; a second decision on the same
// request reports ErrConflict.
func (s *adminRequestsStore) Decide(ctx context.Context, id int64, status, decidedBy string, at time.Time) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != RequestApproved && status != RequestRejected {
		return fmt.Errorf("bad decision status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE admin_requests SET status=?, decided_at=?, decided_by=? WHERE id=? AND status=?`,
		status, at.UTC(), strings.TrimSpace(decidedBy), id, RequestPending)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func scanAdminRequest(sc rowScanner) (*AdminRequest, error) {
	var r AdminRequest
	var decided sql.NullTime
	err := sc.Scan(&r.ID, &r.Email, &r.Username, &r.FullName, &r.Reason, &r.Status, &r.RequestedAt, &decided, &r.DecidedBy)
	if err != nil {
		return nil, err
	}
	r.DecidedAt = timePtr(decided)
	return &r, nil
}
