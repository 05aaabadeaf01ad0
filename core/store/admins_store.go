package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Admin struct {
	AdminID      string    `json:"admin_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AdminsStore interface {
	Create(ctx context.Context, a *Admin) error
	Get(ctx context.Context, adminID string) (*Admin, error)
	FindByUsername(ctx context.Context, username string) (*Admin, error)
	List(ctx context.Context) ([]Admin, error)
	Update(ctx context.Context, a *Admin) error
	SetActive(ctx context.Context, adminID string, active bool) error
	Delete(ctx context.Context, adminID string) error
	GetNames(ctx context.Context, ids []string) (map[string]string, error)
	NextAdminID(ctx context.Context, prefix string) (string, error)
}

type adminsStore struct {
	db *sql.DB
}

func NewAdminsStore(db *sql.DB) AdminsStore {
	return &adminsStore{db: db}
}

const adminColumns = `admin_id, username, email, full_name, password_hash, salt, role, active, created_at, updated_at`

func (s *adminsStore) Create(ctx context.Context, a *Admin) error {
	if strings.TrimSpace(a.AdminID) == "" || strings.TrimSpace(a.Username) == "" {
		return errors.New("admin_id and username required")
	}
	if strings.TrimSpace(a.Role) == "" {
		a.Role = "responder"
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins(`+adminColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(a.AdminID), strings.ToLower(strings.TrimSpace(a.Username)), strings.TrimSpace(a.Email),
		strings.TrimSpace(a.FullName), a.PasswordHash, a.Salt, strings.ToLower(a.Role), boolToInt(a.Active), now, now)
	return err
}

func (s *adminsStore) Get(ctx context.Context, adminID string) (*Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admins WHERE admin_id=?`, strings.TrimSpace(adminID))
	return scanAdmin(row)
}

func (s *adminsStore) FindByUsername(ctx context.Context, username string) (*Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admins WHERE username=?`, strings.ToLower(strings.TrimSpace(username)))
	return scanAdmin(row)
}

func (s *adminsStore) List(ctx context.Context) ([]Admin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY admin_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Admin
	for rows.Next() {
		a, err := scanAdminRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *adminsStore) Update(ctx context.Context, a *Admin) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE admins SET username=?, email=?, full_name=?, password_hash=?, salt=?, role=?, active=?, updated_at=?
		WHERE admin_id=?`,
		strings.ToLower(strings.TrimSpace(a.Username)), strings.TrimSpace(a.Email), strings.TrimSpace(a.FullName),
		a.PasswordHash, a.Salt, strings.ToLower(a.Role), boolToInt(a.Active), now, strings.TrimSpace(a.AdminID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	a.UpdatedAt = now
	return nil
}

func (s *adminsStore) SetActive(ctx context.Context, adminID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE admins SET active=?, updated_at=? WHERE admin_id=?`,
		boolToInt(active), time.Now().UTC(), strings.TrimSpace(adminID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *adminsStore) Delete(ctx context.Context, adminID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE admin_id=?`, strings.TrimSpace(adminID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

// GetNames batch-loads display names, chunked to stay under the data store's
// per-query id limit.
func (s *adminsStore) GetNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, chunk := range chunkIDs(dedupeIDs(ids), 100) {
		query := fmt.Sprintf(`SELECT admin_id, full_name, username FROM admins WHERE admin_id IN (%s)`, placeholders(len(chunk)))
		args := make([]any, 0, len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return out, err
		}
		for rows.Next() {
			var id, full, username string
			if err := rows.Scan(&id, &full, &username); err != nil {
				rows.Close()
				return out, err
			}
			if strings.TrimSpace(full) != "" {
				out[id] = full
			} else {
				out[id] = username
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return out, err
		}
		rows.Close()
	}
	return out, nil
}

// NextAdminID derives the next advisory admin id from the highest existing
// numeric suffix. There is no duplicate retry here; uniqueness is enforced
// only by the primary key at insert time.
func (s *adminsStore) NextAdminID(ctx context.Context, prefix string) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = "ADM"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT admin_id FROM admins WHERE admin_id LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, max+1), nil
}

func dedupeIDs(ids []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func scanAdminInto(sc rowScanner) (Admin, error) {
	var a Admin
	var active int
	err := sc.Scan(&a.AdminID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash, &a.Salt, &a.Role, &active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Active = active == 1
	return a, nil
}

func scanAdmin(row *sql.Row) (*Admin, error) {
	a, err := scanAdminInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanAdminRows(rows *sql.Rows) (Admin, error) {
	return scanAdminInto(rows)
}
