package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/session"
)

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: marshal session messages: %w", err)
	}
	if string(messagesJSON) == "null" {
		messagesJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stepflow_sessions (id, run_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			messages = EXCLUDED.messages,
			updated_at = NOW()`,
		sess.ID.String(), sess.RunID.String(), sess.Title, messagesJSON,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: save session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, title, messages, created_at, updated_at
		FROM stepflow_sessions WHERE id = $1`,
		sessionID.String(),
	)
	sess, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrSessionNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: get session: %w", err)
	}
	return sess, nil
}

// AppendMessage appends a message to a session's transcript with a
// single jsonb concatenation, so concurrent appends serialize in the
// database instead of overwriting each other.
func (s *Store) AppendMessage(ctx context.Context, sessionID id.SessionID, msg session.Message) error {
	msgJSON, err := json.Marshal([]session.Message{msg})
	if err != nil {
		return fmt.Errorf("stepflow/postgres: marshal message: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE stepflow_sessions
		SET messages = messages || $2::jsonb, updated_at = NOW()
		WHERE id = $1`,
		sessionID.String(), msgJSON,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: append message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrSessionNotFound
	}
	return nil
}

// ListSessionsByRun returns the sessions attached to a run, oldest first.
func (s *Store) ListSessionsByRun(ctx context.Context, runID id.RunID) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, title, messages, created_at, updated_at
		FROM stepflow_sessions WHERE run_id = $1 ORDER BY created_at ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("stepflow/postgres: list sessions scan: %w", scanErr)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list sessions rows: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_sessions WHERE id = $1`, sessionID.String())
	if err != nil {
		return fmt.Errorf("stepflow/postgres: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrSessionNotFound
	}
	return nil
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		idStr, runIDStr, title string
		messagesJSON           []byte
		createdAt, updatedAt   time.Time
	)
	if err := row.Scan(&idStr, &runIDStr, &title, &messagesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseSessionID(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", idStr, err)
	}
	parsedRunID, err := id.ParseRunID(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse session run id %q: %w", runIDStr, err)
	}

	var messages []session.Message
	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &messages); err != nil {
			return nil, fmt.Errorf("unmarshal session messages: %w", err)
		}
	}

	return &session.Session{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       parsedID,
		RunID:    parsedRunID,
		Title:    title,
		Messages: messages,
	}, nil
}
