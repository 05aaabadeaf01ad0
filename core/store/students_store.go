package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Student struct {
	StudentID string    `json:"student_id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StudentsStore interface {
	Insert(ctx context.Context, st *Student) error
	Get(ctx context.Context, studentID string) (*Student, error)
	Update(ctx context.Context, st *Student) error
	Delete(ctx context.Context, studentID string) error
	List(ctx context.Context, limit int) ([]Student, error)
	GetNames(ctx context.Context, ids []string) (map[string]string, error)
}

type studentsStore struct {
	db *sql.DB
}

func NewStudentsStore(db *sql.DB) StudentsStore {
	return &studentsStore{db: db}
}

const studentColumns = `student_id, user_id, username, email, full_name, phone, created_at`

func (s *studentsStore) Insert(ctx context.Context, st *Student) error {
	if strings.TrimSpace(st.StudentID) == "" {
		return errors.New("student_id required")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students(`+studentColumns+`) VALUES(?,?,?,?,?,?,?)`,
		strings.TrimSpace(st.StudentID), strings.TrimSpace(st.UserID), strings.ToLower(strings.TrimSpace(st.Username)),
		strings.TrimSpace(st.Email), strings.TrimSpace(st.FullName), strings.TrimSpace(st.Phone), st.CreatedAt.UTC())
	return err
}

func (s *studentsStore) Get(ctx context.Context, studentID string) (*Student, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id=?`, strings.TrimSpace(studentID))
	var st Student
	if err := row.Scan(&st.StudentID, &st.UserID, &st.Username, &st.Email, &st.FullName, &st.Phone, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *studentsStore) Update(ctx context.Context, st *Student) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET user_id=?, username=?, email=?, full_name=?, phone=? WHERE student_id=?`,
		strings.TrimSpace(st.UserID), strings.ToLower(strings.TrimSpace(st.Username)), strings.TrimSpace(st.Email),
		strings.TrimSpace(st.FullName), strings.TrimSpace(st.Phone), strings.TrimSpace(st.StudentID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *studentsStore) Delete(ctx context.Context, studentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE student_id=?`, strings.TrimSpace(studentID))
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *studentsStore) List(ctx context.Context, limit int) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students ORDER BY student_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.StudentID, &st.UserID, &st.Username, &st.Email, &st.FullName, &st.Phone, &st.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (s *studentsStore) GetNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, chunk := range chunkIDs(dedupeIDs(ids), 100) {
		query := fmt.Sprintf(`SELECT student_id, full_name, username FROM students WHERE student_id IN (%s)`, placeholders(len(chunk)))
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
