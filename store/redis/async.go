package redis

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
	key := asyncStateKey(st.RunID.String(), st.Step)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"run_id", st.RunID.String(),
		"step", st.Step,
		"data", string(st.Data),
		"created_at", st.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", st.UpdatedAt.Format(time.RFC3339Nano),
	)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/redis: save async state: %w", err)
	}
	return nil
}

// GetAsyncState retrieves partial progress for a run/step pair.
func (s *Store) GetAsyncState(ctx context.Context, runID id.RunID, step string) (*run.AsyncState, error) {
	vals, err := s.client.HGetAll(ctx, asyncStateKey(runID.String(), step)).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get async state: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrAsyncStateNotFound
	}

	rID, err := id.ParseRunID(vals["run_id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse async state run id: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, vals["updated_at"])

	st := &run.AsyncState{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		RunID: rID,
		Step:  vals["step"],
	}
	if v := vals["data"]; v != "" {
		st.Data = []byte(v)
	}
	return st, nil
}

// DeleteAsyncState clears partial progress for a run/step pair.
func (s *Store) DeleteAsyncState(ctx context.Context, runID id.RunID, step string) error {
	n, err := s.client.Del(ctx, asyncStateKey(runID.String(), step)).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: delete async state: %w", err)
	}
	if n == 0 {
		return stepflow.ErrAsyncStateNotFound
	}
	return nil
}
