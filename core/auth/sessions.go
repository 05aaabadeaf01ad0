package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"

	"campus-alert/core/store"
	"campus-alert/core/utils"
)

const (
	SessionCookie = "campus_session"
	CSRFHeader    = "X-CSRF-Token"
)

type ctxKey int

const sessionCtxKey ctxKey = 1

var ErrNoSession = errors.New("no session")

// SessionManager issues and resolves cookie-backed admin sessions. Session
// state lives in the database so a restart does not log everyone out.
type SessionManager struct {
	sessions store.SessionStore
	ttl      time.Duration
	secure   bool
}

func NewSessionManager(sessions store.SessionStore, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionManager{sessions: sessions, ttl: ttl, secure: secure}
}

func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue creates a session for a signed-in admin and sets the cookie.
func (m *SessionManager) Issue(ctx context.Context, w http.ResponseWriter, r *http.Request, admin *store.Admin) (*store.SessionRecord, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	csrf, err := utils.RandString(32)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:         id.String(),
		AdminID:    admin.AdminID,
		Username:   admin.Username,
		Role:       admin.Role,
		CSRFToken:  csrf,
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.sessions.SaveSession(ctx, rec); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  rec.ExpiresAt,
	})
	return rec, nil
}

// Resolve loads the session referenced by the request cookie and slides its
// expiry forward. Returns ErrNoSession when the cookie is absent or stale.
func (m *SessionManager) Resolve(ctx context.Context, r *http.Request) (*store.SessionRecord, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	rec, err := m.sessions.GetSession(ctx, c.Value)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoSession
	}
	if err := m.sessions.UpdateActivity(ctx, rec.ID, time.Now().UTC(), m.ttl); err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke ends the session and clears the cookie.
func (m *SessionManager) Revoke(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(SessionCookie)
	if err == nil && c.Value != "" {
		if err := m.sessions.DeleteSession(ctx, c.Value); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	return nil
}

// WithSession stashes a resolved session in the request context.
func WithSession(ctx context.Context, rec *store.SessionRecord) context.Context {
	return context.WithValue(ctx, sessionCtxKey, rec)
}

// SessionFrom returns the session stored in the context, or nil.
func SessionFrom(ctx context.Context) *store.SessionRecord {
	rec, _ := ctx.Value(sessionCtxKey).(*store.SessionRecord)
	return rec
}
