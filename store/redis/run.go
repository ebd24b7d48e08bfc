package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	rID := r.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return stepflow.ErrRunAlreadyExists
	}

	m, err := runToMap(r)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	pipe.SAdd(ctx, runIDsKey, rID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	key := runKey(runID.String())
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrRunNotFound
	}
	return mapToRun(vals)
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *run.Run) error {
	key := runKey(r.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return stepflow.ErrRunNotFound
	}

	m, err := runToMap(r)
	if err != nil {
		return err
	}
	m["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key, m).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts run.ListOpts) ([]*run.Run, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: list runs smembers: %w", err)
	}

	var runs []*run.Run
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, runKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRun(vals)
		if convErr != nil {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.Workflow != "" && r.Workflow != opts.Workflow {
			continue
		}
		runs = append(runs, r)
	}

	// SMembers order is unspecified, so sort to honor the contract.
	sort.Slice(runs, func(i, k int) bool {
		return runs[i].CreatedAt.Before(runs[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// ── helpers ──

func runToMap(r *run.Run) (map[string]interface{}, error) {
	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: marshal run context: %w", err)
	}
	invocationsJSON, err := json.Marshal(r.Invocations)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: marshal run invocations: %w", err)
	}

	m := map[string]interface{}{
		"id":            r.ID.String(),
		"workflow":      r.Workflow,
		"status":        string(r.Status),
		"current_step":  r.CurrentStep,
		"context":       string(contextJSON),
		"input":         string(r.Input),
		"current_input": string(r.CurrentInput),
		"invocations":   string(invocationsJSON),
		"await_token":   r.AwaitToken,
		"result":        string(r.Result),
		"error":         r.Error,
		"started_at":    r.StartedAt.Format(time.RFC3339Nano),
		"created_at":    r.Entity.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    r.Entity.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToRun(m map[string]string) (*run.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse run id: %w", err)
	}

	c := run.NewContext()
	if v := m["context"]; v != "" {
		if err := json.Unmarshal([]byte(v), c); err != nil {
			return nil, fmt.Errorf("stepflow/redis: unmarshal run context: %w", err)
		}
	}

	invocations := make(map[string]int)
	if v := m["invocations"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &invocations); err != nil {
			return nil, fmt.Errorf("stepflow/redis: unmarshal run invocations: %w", err)
		}
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	r := &run.Run{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          rID,
		Workflow:    m["workflow"],
		Status:      run.Status(m["status"]),
		CurrentStep: m["current_step"],
		Context:     c,
		Invocations: invocations,
		AwaitToken:  m["await_token"],
		Error:       m["error"],
		StartedAt:   startedAt,
	}

	if v := m["input"]; v != "" {
		r.Input = []byte(v)
	}
	if v := m["current_input"]; v != "" {
		r.CurrentInput = []byte(v)
	}
	if v := m["result"]; v != "" {
		r.Result = []byte(v)
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		r.CompletedAt = &t
	}
	return r, nil
}
