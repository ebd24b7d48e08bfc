package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/progress"
)

// SaveProgress inserts or replaces the progress snapshot for a run.
func (s *Store) SaveProgress(ctx context.Context, p *progress.Progress) error {
	key := progressKey(p.RunID.String())

	err := s.client.HSet(ctx, key,
		"run_id", p.RunID.String(),
		"workflow", p.Workflow,
		"step", p.Step,
		"percent", strconv.Itoa(p.Percent),
		"state", string(p.State),
		"note", p.Note,
		"created_at", p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", p.UpdatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("stepflow/redis: save progress: %w", err)
	}
	return nil
}

// GetProgress returns the progress snapshot for a run.
func (s *Store) GetProgress(ctx context.Context, runID id.RunID) (*progress.Progress, error) {
	vals, err := s.client.HGetAll(ctx, progressKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get progress: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrProgressNotFound
	}

	rID, err := id.ParseRunID(vals["run_id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse progress run id: %w", err)
	}
	percent, _ := strconv.Atoi(vals["percent"])
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, vals["updated_at"])

	return &progress.Progress{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		RunID:    rID,
		Workflow: vals["workflow"],
		Step:     vals["step"],
		Percent:  percent,
		State:    progress.State(vals["state"]),
		Note:     vals["note"],
	}, nil
}

// DeleteProgress removes the progress snapshot for a run.
func (s *Store) DeleteProgress(ctx context.Context, runID id.RunID) error {
	n, err := s.client.Del(ctx, progressKey(runID.String())).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: delete progress: %w", err)
	}
	if n == 0 {
		return stepflow.ErrProgressNotFound
	}
	return nil
}
