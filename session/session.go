// Package session stores conversation transcripts attached to workflow
// runs, so conversational workflows can reload their message history when
// a run resumes.
package session

import (
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a session transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the transcript of one conversational run.
type Session struct {
	stepflow.Entity

	ID       id.SessionID `json:"id"`
	RunID    id.RunID     `json:"run_id"`
	Title    string       `json:"title"`
	Messages []Message    `json:"messages"`
}

// New creates an empty session bound to a run.
func New(runID id.RunID, title string) *Session {
	return &Session{
		Entity: stepflow.NewEntity(),
		ID:     id.NewSessionID(),
		RunID:  runID,
		Title:  title,
	}
}

// Append adds a message to the transcript.
func (s *Session) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	s.Touch()
}

// Last returns the most recent message, or false for an empty transcript.
func (s *Session) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}
