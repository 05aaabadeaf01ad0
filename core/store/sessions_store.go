package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type SessionRecord struct {
	ID         string    `json:"id"`
	AdminID    string    `json:"admin_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	CSRFToken  string    `json:"-"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type SessionStore interface {
	SaveSession(ctx context.Context, sr *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
}

type sessionsStore struct {
	db *sql.DB
}

func NewSessionsStore(db *sql.DB) SessionStore {
	return &sessionsStore{db: db}
}

func (s *sessionsStore) SaveSession(ctx context.Context, sr *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, admin_id, username, role, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at, revoked)
		VALUES(?,?,?,?,?,?,?,?,?,?,0)`,
		sr.ID, sr.AdminID, strings.ToLower(sr.Username), sr.Role, sr.CSRFToken, sr.IP, sr.UserAgent,
		sr.CreatedAt.UTC(), sr.LastSeenAt.UTC(), sr.ExpiresAt.UTC())
	return err
}

// GetSession returns nil for unknown, revoked or expired sessions.
func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, admin_id, username, role, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=? AND revoked=0`, strings.TrimSpace(id))
	var sr SessionRecord
	if err := row.Scan(&sr.ID, &sr.AdminID, &sr.Username, &sr.Role, &sr.CSRFToken, &sr.IP, &sr.UserAgent,
		&sr.CreatedAt, &sr.LastSeenAt, &sr.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !sr.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	return &sr, nil
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=? AND revoked=0`,
		now.UTC(), now.UTC().Add(ttl), strings.TrimSpace(id))
	return err
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked=1 WHERE id=?`, strings.TrimSpace(id))
	return err
}

func (s *sessionsStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ? OR revoked=1`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sessionsStore) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT admin_id) FROM sessions WHERE revoked=0 AND expires_at > ? AND last_seen_at >= ?`,
		time.Now().UTC(), since.UTC())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
