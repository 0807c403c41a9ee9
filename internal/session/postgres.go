package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/varsilias/askdesk/pkg/types"
)

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_turns (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		sources TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_turns_session_idx ON chat_turns (session_id, id)`,
}

const upsertSession = `INSERT INTO chat_sessions (id, updated_at) VALUES ($1, now())
	ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`

// PgStore keeps history in Postgres, one row per turn.
type PgStore struct {
	db *sql.DB
}

func NewPgStore(conn string) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PgStore{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	for _, s := range schemaStmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PgStore) Close() error { return s.db.Close() }

func (s *PgStore) Append(sessionID string, m types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(upsertSession, sessionID); err != nil {
		return err
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sources := m.Sources
	if sources == nil {
		sources = []string{}
	}
	if _, err := tx.Exec(`INSERT INTO chat_turns (session_id, role, content, sources, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sessionID, string(m.Role), m.Content, pq.Array(sources), ts); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgStore) Get(sessionID string) ([]types.Message, error) {
	rows, err := s.db.Query(`SELECT role, content, sources, created_at FROM chat_turns WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Message{}
	for rows.Next() {
		var (
			m    types.Message
			role string
		)
		if err := rows.Scan(&role, &m.Content, pq.Array(&m.Sources), &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = types.Role(role)
		if len(m.Sources) == 0 {
			m.Sources = nil
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PgStore) Clear(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM chat_turns WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(upsertSession, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgStore) Touch(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	_, err := s.db.Exec(upsertSession, sessionID)
	return err
}

func (s *PgStore) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.updated_at,
			COALESCE((SELECT t.content FROM chat_turns t
				WHERE t.session_id = s.id AND t.role = 'user'
				ORDER BY t.id LIMIT 1), '')
		FROM chat_sessions s`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum   Summary
			first string
		)
		if err := rows.Scan(&sum.ID, &sum.Updated, &first); err != nil {
			return nil, err
		}
		if first != "" {
			sum.Title = clip(words(first), 8)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
