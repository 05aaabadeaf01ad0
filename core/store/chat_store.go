package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ChatMessage struct {
	ID         int64     `json:"id"`
	IncidentID string    `json:"incident_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

type ChatStore interface {
	Insert(ctx context.Context, m *ChatMessage) error
	ListForIncident(ctx context.Context, incidentID string, limit int) ([]ChatMessage, error)
	DeleteForIncident(ctx context.Context, incidentID string) error
}

type chatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) ChatStore {
	return &chatStore{db: db}
}

func (s *chatStore) Insert(ctx context.Context, m *ChatMessage) error {
	if strings.TrimSpace(m.Body) == "" {
		return errors.New("empty message")
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages(incident_id, sender_id, sender_role, body, sent_at) VALUES(?,?,?,?,?)`,
		strings.TrimSpace(m.IncidentID), strings.TrimSpace(m.SenderID), strings.ToLower(strings.TrimSpace(m.SenderRole)),
		m.Body, m.SentAt.UTC())
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.ID = id
	return nil
}

func (s *chatStore) ListForIncident(ctx context.Context, incidentID string, limit int) ([]ChatMessage, error) {
	query := `
		SELECT id, incident_id, sender_id, sender_role, body, sent_at
		FROM chat_messages WHERE incident_id=? ORDER BY sent_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, strings.TrimSpace(incidentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.IncidentID, &m.SenderID, &m.SenderRole, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s *chatStore) DeleteForIncident(ctx context.Context, incidentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE incident_id=?`, strings.TrimSpace(incidentID))
	return err
}
