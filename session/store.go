package session

import (
	"context"

	"github.com/xraph/stepflow/id"
)

// Store persists sessions. Implementations must be safe for concurrent
// use.
type Store interface {
	// SaveSession inserts or replaces a session.
	SaveSession(ctx context.Context, s *Session) error

	// GetSession returns a session by id, or stepflow.ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID id.SessionID) (*Session, error)

	// AppendMessage atomically appends a message to a session's
	// transcript, or returns stepflow.ErrSessionNotFound.
	AppendMessage(ctx context.Context, sessionID id.SessionID, msg Message) error

	// ListSessionsByRun returns the sessions attached to a run, oldest
	// first.
	ListSessionsByRun(ctx context.Context, runID id.RunID) ([]*Session, error)

	// DeleteSession removes a session by id, or returns
	// stepflow.ErrSessionNotFound.
	DeleteSession(ctx context.Context, sessionID id.SessionID) error
}
