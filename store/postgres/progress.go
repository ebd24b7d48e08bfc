package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/progress"
)

// SaveProgress inserts or replaces the progress snapshot for a run.
func (s *Store) SaveProgress(ctx context.Context, p *progress.Progress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_progress (run_id, workflow, step, percent, state, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			workflow = EXCLUDED.workflow,
			step = EXCLUDED.step,
			percent = EXCLUDED.percent,
			state = EXCLUDED.state,
			note = EXCLUDED.note,
			updated_at = NOW()`,
		p.RunID.String(), p.Workflow, p.Step, p.Percent, string(p.State), p.Note,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: save progress: %w", err)
	}
	return nil
}

// GetProgress returns the progress snapshot for a run.
func (s *Store) GetProgress(ctx context.Context, runID id.RunID) (*progress.Progress, error) {
	var (
		workflow, step, state, note string
		percent                     int
		createdAt, updatedAt        time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT workflow, step, percent, state, note, created_at, updated_at
		FROM stepflow_progress WHERE run_id = $1`,
		runID.String(),
	).Scan(&workflow, &step, &percent, &state, &note, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrProgressNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: get progress: %w", err)
	}

	return &progress.Progress{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		RunID:    runID,
		Workflow: workflow,
		Step:     step,
		Percent:  percent,
		State:    progress.State(state),
		Note:     note,
	}, nil
}

// DeleteProgress removes the progress snapshot for a run.
func (s *Store) DeleteProgress(ctx context.Context, runID id.RunID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_progress WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("stepflow/postgres: delete progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrProgressNotFound
	}
	return nil
}
