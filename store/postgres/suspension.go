package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// SaveSuspension persists suspension data keyed by its await token. Saving
// an existing token replaces the entry.
func (s *Store) SaveSuspension(ctx context.Context, susp *run.Suspension) error {
	var handoffJSON []byte
	if susp.Handoff != nil {
		var err error
		handoffJSON, err = json.Marshal(susp.Handoff)
		if err != nil {
			return fmt.Errorf("stepflow/postgres: marshal suspension handoff: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_suspensions (token, run_id, next_step, data, handoff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (token) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			next_step = EXCLUDED.next_step,
			data = EXCLUDED.data,
			handoff = EXCLUDED.handoff,
			updated_at = NOW()`,
		susp.Token, susp.RunID.String(), susp.NextStep, susp.Data, handoffJSON,
		susp.CreatedAt, susp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: save suspension: %w", err)
	}
	return nil
}

// GetSuspension retrieves suspension data by await token.
func (s *Store) GetSuspension(ctx context.Context, token string) (*run.Suspension, error) {
	var (
		runIDStr, nextStep   string
		data, handoffJSON    []byte
		createdAt, updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, next_step, data, handoff, created_at, updated_at
		FROM stepflow_suspensions WHERE token = $1`,
		token,
	).Scan(&runIDStr, &nextStep, &data, &handoffJSON, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrSuspensionNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: get suspension: %w", err)
	}

	parsedRunID, err := id.ParseRunID(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("stepflow/postgres: parse suspension run id %q: %w", runIDStr, err)
	}

	susp := &run.Suspension{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		Token:    token,
		RunID:    parsedRunID,
		NextStep: nextStep,
		Data:     data,
	}
	if len(handoffJSON) > 0 {
		var h run.Handoff
		if err := json.Unmarshal(handoffJSON, &h); err != nil {
			return nil, fmt.Errorf("stepflow/postgres: unmarshal suspension handoff: %w", err)
		}
		susp.Handoff = &h
	}
	return susp, nil
}

// DeleteSuspension removes suspension data once the run has resumed.
func (s *Store) DeleteSuspension(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_suspensions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: delete suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrSuspensionNotFound
	}
	return nil
}
