package redis

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
	key := suspensionKey(susp.Token)

	m := map[string]interface{}{
		"token":      susp.Token,
		"run_id":     susp.RunID.String(),
		"next_step":  susp.NextStep,
		"data":       string(susp.Data),
		"created_at": susp.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": susp.UpdatedAt.Format(time.RFC3339Nano),
	}
	if susp.Handoff != nil {
		handoffJSON, err := json.Marshal(susp.Handoff)
		if err != nil {
			return fmt.Errorf("stepflow/redis: marshal suspension handoff: %w", err)
		}
		m["handoff"] = string(handoffJSON)
	}

	// Del first so fields from a replaced entry don't linger in the hash.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, m)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/redis: save suspension: %w", err)
	}
	return nil
}

// GetSuspension retrieves suspension data by await token.
func (s *Store) GetSuspension(ctx context.Context, token string) (*run.Suspension, error) {
	vals, err := s.client.HGetAll(ctx, suspensionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get suspension: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrSuspensionNotFound
	}
	return mapToSuspension(vals)
}

// DeleteSuspension removes suspension data once the run has resumed.
func (s *Store) DeleteSuspension(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, suspensionKey(token)).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: delete suspension: %w", err)
	}
	if n == 0 {
		return stepflow.ErrSuspensionNotFound
	}
	return nil
}

func mapToSuspension(m map[string]string) (*run.Suspension, error) {
	rID, err := id.ParseRunID(m["run_id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse suspension run id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	susp := &run.Suspension{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		Token:    m["token"],
		RunID:    rID,
		NextStep: m["next_step"],
	}
	if v := m["data"]; v != "" {
		susp.Data = []byte(v)
	}
	if v := m["handoff"]; v != "" {
		var h run.Handoff
		if err := json.Unmarshal([]byte(v), &h); err != nil {
			return nil, fmt.Errorf("stepflow/redis: unmarshal suspension handoff: %w", err)
		}
		susp.Handoff = &h
	}
	return susp, nil
}
