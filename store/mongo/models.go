package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
)

// ── Run model ─────────────────────────────────────────────────────

type runModel struct {
	ID           string         `bson:"_id"`
	Workflow     string         `bson:"workflow"`
	Status       string         `bson:"status"`
	CurrentStep  string         `bson:"current_step"`
	Context      []byte         `bson:"context"`
	Input        []byte         `bson:"input,omitempty"`
	CurrentInput []byte         `bson:"current_input,omitempty"`
	Invocations  map[string]int `bson:"invocations,omitempty"`
	AwaitToken   string         `bson:"await_token"`
	Result       []byte         `bson:"result,omitempty"`
	Error        string         `bson:"error"`
	StartedAt    time.Time      `bson:"started_at"`
	CompletedAt  *time.Time     `bson:"completed_at,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

func toRunModel(r *run.Run) (*runModel, error) {
	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: marshal run context: %w", err)
	}

	return &runModel{
		ID:           r.ID.String(),
		Workflow:     r.Workflow,
		Status:       string(r.Status),
		CurrentStep:  r.CurrentStep,
		Context:      contextJSON,
		Input:        r.Input,
		CurrentInput: r.CurrentInput,
		Invocations:  r.Invocations,
		AwaitToken:   r.AwaitToken,
		Result:       r.Result,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func fromRunModel(m *runModel) (*run.Run, error) {
	parsedID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse run id %q: %w", m.ID, err)
	}

	c := run.NewContext()
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, c); err != nil {
			return nil, fmt.Errorf("stepflow/mongo: unmarshal run context: %w", err)
		}
	}

	invocations := m.Invocations
	if invocations == nil {
		invocations = make(map[string]int)
	}

	return &run.Run{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Workflow:     m.Workflow,
		Status:       run.Status(m.Status),
		CurrentStep:  m.CurrentStep,
		Context:      c,
		Input:        m.Input,
		CurrentInput: m.CurrentInput,
		Invocations:  invocations,
		AwaitToken:   m.AwaitToken,
		Result:       m.Result,
		Error:        m.Error,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}, nil
}

// ── Suspension model ──────────────────────────────────────────────

type suspensionModel struct {
	// _id is the await token; one suspension per token.
	ID        string        `bson:"_id"`
	RunID     string        `bson:"run_id"`
	NextStep  string        `bson:"next_step"`
	Data      []byte        `bson:"data,omitempty"`
	Handoff   *handoffModel `bson:"handoff,omitempty"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type handoffModel struct {
	Workflow   string `bson:"workflow"`
	Input      []byte `bson:"input,omitempty"`
	ChildRunID string `bson:"child_run_id,omitempty"`
}

func toSuspensionModel(s *run.Suspension) *suspensionModel {
	m := &suspensionModel{
		ID:        s.Token,
		RunID:     s.RunID.String(),
		NextStep:  s.NextStep,
		Data:      s.Data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Handoff != nil {
		m.Handoff = &handoffModel{
			Workflow:   s.Handoff.Workflow,
			Input:      s.Handoff.Input,
			ChildRunID: s.Handoff.ChildRunID.String(),
		}
	}
	return m
}

func fromSuspensionModel(m *suspensionModel) (*run.Suspension, error) {
	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse suspension run id %q: %w", m.RunID, err)
	}

	s := &run.Suspension{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Token:    m.ID,
		RunID:    parsedRunID,
		NextStep: m.NextStep,
		Data:     m.Data,
	}
	if m.Handoff != nil {
		h := &run.Handoff{
			Workflow: m.Handoff.Workflow,
			Input:    m.Handoff.Input,
		}
		if m.Handoff.ChildRunID != "" {
			childID, cErr := id.ParseRunID(m.Handoff.ChildRunID)
			if cErr != nil {
				return nil, fmt.Errorf("stepflow/mongo: parse handoff child run id %q: %w", m.Handoff.ChildRunID, cErr)
			}
			h.ChildRunID = childID
		}
		s.Handoff = h
	}
	return s, nil
}

// ── Async state model ─────────────────────────────────────────────

type asyncStateModel struct {
	// _id is "runID:step"; one state row per run/step pair.
	ID        string    `bson:"_id"`
	RunID     string    `bson:"run_id"`
	Step      string    `bson:"step"`
	Data      []byte    `bson:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func asyncStateID(runID id.RunID, step string) string {
	return runID.String() + ":" + step
}

func toAsyncStateModel(s *run.AsyncState) *asyncStateModel {
	return &asyncStateModel{
		ID:        asyncStateID(s.RunID, s.Step),
		RunID:     s.RunID.String(),
		Step:      s.Step,
		Data:      s.Data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromAsyncStateModel(m *asyncStateModel) (*run.AsyncState, error) {
	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse async state run id %q: %w", m.RunID, err)
	}

	return &run.AsyncState{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		RunID: parsedRunID,
		Step:  m.Step,
		Data:  m.Data,
	}, nil
}

// ── Record model ──────────────────────────────────────────────────

type recordModel struct {
	ID        string    `bson:"_id"`
	RunID     string    `bson:"run_id"`
	Workflow  string    `bson:"workflow"`
	Type      string    `bson:"type"`
	Step      string    `bson:"step,omitempty"`
	Status    string    `bson:"status"`
	Data      []byte    `bson:"data,omitempty"`
	Error     string    `bson:"error,omitempty"`
	Seq       int64     `bson:"seq"`
	Timestamp time.Time `bson:"timestamp"`
}

func toRecordModel(rec *run.Record) *recordModel {
	return &recordModel{
		ID:        rec.ID.String(),
		RunID:     rec.RunID.String(),
		Workflow:  rec.Workflow,
		Type:      string(rec.Type),
		Step:      rec.Step,
		Status:    string(rec.Status),
		Data:      rec.Data,
		Error:     rec.Error,
		Seq:       rec.Seq,
		Timestamp: rec.Timestamp,
	}
}

func fromRecordModel(m *recordModel) (*run.Record, error) {
	parsedID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse record id %q: %w", m.ID, err)
	}
	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse record run id %q: %w", m.RunID, err)
	}

	return &run.Record{
		ID:        parsedID,
		RunID:     parsedRunID,
		Workflow:  m.Workflow,
		Type:      run.RecordType(m.Type),
		Step:      m.Step,
		Status:    run.RecordStatus(m.Status),
		Data:      m.Data,
		Error:     m.Error,
		Seq:       m.Seq,
		Timestamp: m.Timestamp,
	}, nil
}

// ── Session model ─────────────────────────────────────────────────

type sessionModel struct {
	ID        string         `bson:"_id"`
	RunID     string         `bson:"run_id"`
	Title     string         `bson:"title"`
	Messages  []messageModel `bson:"messages"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type messageModel struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

func toSessionModel(s *session.Session) *sessionModel {
	messages := make([]messageModel, len(s.Messages))
	for i, msg := range s.Messages {
		messages[i] = messageModel{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
	}

	return &sessionModel{
		ID:        s.ID.String(),
		RunID:     s.RunID.String(),
		Title:     s.Title,
		Messages:  messages,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSessionModel(m *sessionModel) (*session.Session, error) {
	parsedID, err := id.ParseSessionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse session id %q: %w", m.ID, err)
	}
	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse session run id %q: %w", m.RunID, err)
	}

	messages := make([]session.Message, len(m.Messages))
	for i, msg := range m.Messages {
		messages[i] = session.Message{
			Role:      session.Role(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
	}

	return &session.Session{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       parsedID,
		RunID:    parsedRunID,
		Title:    m.Title,
		Messages: messages,
	}, nil
}

// ── Progress model ────────────────────────────────────────────────

type progressModel struct {
	// _id is the run ID; one snapshot per run.
	ID        string    `bson:"_id"`
	Workflow  string    `bson:"workflow"`
	Step      string    `bson:"step"`
	Percent   int       `bson:"percent"`
	State     string    `bson:"state"`
	Note      string    `bson:"note"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toProgressModel(p *progress.Progress) *progressModel {
	return &progressModel{
		ID:        p.RunID.String(),
		Workflow:  p.Workflow,
		Step:      p.Step,
		Percent:   p.Percent,
		State:     string(p.State),
		Note:      p.Note,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromProgressModel(m *progressModel) (*progress.Progress, error) {
	parsedRunID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: parse progress run id %q: %w", m.ID, err)
	}

	return &progress.Progress{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		RunID:    parsedRunID,
		Workflow: m.Workflow,
		Step:     m.Step,
		Percent:  m.Percent,
		State:    progress.State(m.State),
		Note:     m.Note,
	}, nil
}
