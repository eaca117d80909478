package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Session is one collect invocation.
type Session struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Hand       string    `json:"hand"`
	LabelIndex int       `json:"label_index"`
	Existing   int       `json:"existing"`
	Saved      int       `json:"saved"`
	Total      int       `json:"total"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SessionRepository provides access to collection sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the collection session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := time.Now()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	if sess.FinishedAt.IsZero() {
		sess.FinishedAt = now
	}

	_, err := r.db.Exec(
		`INSERT INTO collection_sessions (id, label, hand, label_index, existing, saved, total, outcome, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Label, sess.Hand, sess.LabelIndex, sess.Existing, sess.Saved, sess.Total, sess.Outcome,
		sess.StartedAt, sess.FinishedAt,
	)
	return err
}

// List returns sessions, newest first. An empty label returns every session.
func (r *SessionRepository) List(label string) ([]*Session, error) {
	query := `SELECT id, label, hand, label_index, existing, saved, total, outcome, started_at, finished_at
		FROM collection_sessions`
	var args []any
	if label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s := &Session{}
		if err := rows.Scan(&s.ID, &s.Label, &s.Hand, &s.LabelIndex, &s.Existing, &s.Saved, &s.Total, &s.Outcome,
			&s.StartedAt, &s.FinishedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SavedTotal returns the number of samples saved across every session of label.
func (r *SessionRepository) SavedTotal(label string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COALESCE(SUM(saved), 0) FROM collection_sessions WHERE label = ?`, label).Scan(&n)
	return n, err
}
