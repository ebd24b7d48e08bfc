package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each contract.
var (
	_ run.Store           = (*Store)(nil)
	_ run.SuspensionStore = (*Store)(nil)
	_ run.AsyncStore      = (*Store)(nil)
	_ run.RecordStore     = (*Store)(nil)
	_ session.Store       = (*Store)(nil)
	_ progress.Store      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*run.Run
	suspensions map[string]*run.Suspension    // key: await token
	asyncs      map[string]*run.AsyncState    // key: "runID:step"
	records     map[string][]*run.Record      // key: runID
	sessions    map[string]*session.Session   // key: session ID
	progresses  map[string]*progress.Progress // key: runID
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*run.Run),
		suspensions: make(map[string]*run.Suspension),
		asyncs:      make(map[string]*run.AsyncState),
		records:     make(map[string][]*run.Record),
		sessions:    make(map[string]*session.Session),
		progresses:  make(map[string]*progress.Progress),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Run Store
// ──────────────────────────────────────────────────

// CreateRun persists a new run.
func (m *Store) CreateRun(_ context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.runs[key]; exists {
		return stepflow.ErrRunAlreadyExists
	}
	m.runs[key] = r.Clone()
	return nil
}

// GetRun retrieves a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, stepflow.ErrRunNotFound
	}
	// Return a deep copy so callers can mutate without racing the store.
	return r.Clone(), nil
}

// UpdateRun persists changes to an existing run.
func (m *Store) UpdateRun(_ context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.runs[key]; !ok {
		return stepflow.ErrRunNotFound
	}
	cp := r.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = cp
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (m *Store) ListRuns(_ context.Context, opts run.ListOpts) ([]*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*run.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.Workflow != "" && r.Workflow != opts.Workflow {
			continue
		}
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Suspension Store
// ──────────────────────────────────────────────────

// SaveSuspension persists suspension data keyed by its await token.
func (m *Store) SaveSuspension(_ context.Context, s *run.Suspension) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.suspensions[s.Token] = &cp
	return nil
}

// GetSuspension retrieves suspension data by await token.
func (m *Store) GetSuspension(_ context.Context, token string) (*run.Suspension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.suspensions[token]
	if !ok {
		return nil, stepflow.ErrSuspensionNotFound
	}
	cp := *s
	return &cp, nil
}

// DeleteSuspension removes suspension data once the run has resumed.
func (m *Store) DeleteSuspension(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.suspensions[token]; !ok {
		return stepflow.ErrSuspensionNotFound
	}
	delete(m.suspensions, token)
	return nil
}

// ──────────────────────────────────────────────────
// Async Step Store
// ──────────────────────────────────────────────────

// asyncKey builds a composite map key for async step state.
func asyncKey(runID id.RunID, step string) string {
	return runID.String() + ":" + step
}

// SaveAsyncState persists partial progress for a run/step pair.
func (m *Store) SaveAsyncState(_ context.Context, s *run.AsyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.asyncs[asyncKey(s.RunID, s.Step)] = &cp
	return nil
}

// GetAsyncState retrieves partial progress for a run/step pair.
func (m *Store) GetAsyncState(_ context.Context, runID id.RunID, step string) (*run.AsyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.asyncs[asyncKey(runID, step)]
	if !ok {
		return nil, stepflow.ErrAsyncStateNotFound
	}
	cp := *s
	return &cp, nil
}

// DeleteAsyncState clears partial progress for a run/step pair.
func (m *Store) DeleteAsyncState(_ context.Context, runID id.RunID, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := asyncKey(runID, step)
	if _, ok := m.asyncs[key]; !ok {
		return stepflow.ErrAsyncStateNotFound
	}
	delete(m.asyncs, key)
	return nil
}

// ──────────────────────────────────────────────────
// Record Store
// ──────────────────────────────────────────────────

// AppendRecord appends an execution record.
func (m *Store) AppendRecord(_ context.Context, rec *run.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.RunID.String()
	m.records[key] = append(m.records[key], rec)
	return nil
}

// ListRecords returns all records for a run in Seq order.
func (m *Store) ListRecords(_ context.Context, runID id.RunID) ([]*run.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[runID.String()]
	result := make([]*run.Record, len(recs))
	copy(result, recs)

	sort.Slice(result, func(i, k int) bool {
		return result[i].Seq < result[k].Seq
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// SaveSession inserts or replaces a session.
func (m *Store) SaveSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID.String()] = s.Clone()
	return nil
}

// GetSession returns a session by id.
func (m *Store) GetSession(_ context.Context, sessionID id.SessionID) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID.String()]
	if !ok {
		return nil, stepflow.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// AppendMessage appends a message to a session's transcript.
func (m *Store) AppendMessage(_ context.Context, sessionID id.SessionID, msg session.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID.String()]
	if !ok {
		return stepflow.ErrSessionNotFound
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ListSessionsByRun returns the sessions attached to a run, oldest first.
func (m *Store) ListSessionsByRun(_ context.Context, runID id.RunID) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*session.Session
	for _, s := range m.sessions {
		if s.RunID == runID {
			result = append(result, s.Clone())
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// DeleteSession removes a session by id.
func (m *Store) DeleteSession(_ context.Context, sessionID id.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return stepflow.ErrSessionNotFound
	}
	delete(m.sessions, key)
	return nil
}

// ──────────────────────────────────────────────────
// Progress Store
// ──────────────────────────────────────────────────

// SaveProgress inserts or replaces the snapshot for a run.
func (m *Store) SaveProgress(_ context.Context, p *progress.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progresses[p.RunID.String()] = p.Clone()
	return nil
}

// GetProgress returns the snapshot for a run.
func (m *Store) GetProgress(_ context.Context, runID id.RunID) (*progress.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progresses[runID.String()]
	if !ok {
		return nil, stepflow.ErrProgressNotFound
	}
	return p.Clone(), nil
}

// DeleteProgress removes the snapshot for a run.
func (m *Store) DeleteProgress(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	if _, ok := m.progresses[key]; !ok {
		return stepflow.ErrProgressNotFound
	}
	delete(m.progresses, key)
	return nil
}
