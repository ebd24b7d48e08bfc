package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// SaveAsyncState persists partial progress for a run/step pair, replacing
// any previous state.
func (s *Store) SaveAsyncState(ctx context.Context, st *run.AsyncState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_async_states (run_id, step, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, step) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()`,
		st.RunID.String(), st.Step, st.Data, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: save async state: %w", err)
	}
	return nil
}

// GetAsyncState retrieves partial progress for a run/step pair.
func (s *Store) GetAsyncState(ctx context.Context, runID id.RunID, step string) (*run.AsyncState, error) {
	var (
		data                 []byte
		createdAt, updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT data, created_at, updated_at
		FROM stepflow_async_states WHERE run_id = $1 AND step = $2`,
		runID.String(), step,
	).Scan(&data, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrAsyncStateNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: get async state: %w", err)
	}

	return &run.AsyncState{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		RunID: runID,
		Step:  step,
		Data:  data,
	}, nil
}

// DeleteAsyncState clears partial progress for a run/step pair.
func (s *Store) DeleteAsyncState(ctx context.Context, runID id.RunID, step string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_async_states WHERE run_id = $1 AND step = $2`,
		runID.String(), step)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: delete async state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrAsyncStateNotFound
	}
	return nil
}
