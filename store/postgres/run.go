package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

const runColumns = `id, workflow, status, current_step, context, input, current_input,
	invocations, await_token, result, error, started_at, completed_at, created_at, updated_at`

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	contextJSON, invocationsJSON, err := runJSONFields(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stepflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID.String(), r.Workflow, string(r.Status), r.CurrentStep, contextJSON,
		r.Input, r.CurrentInput, invocationsJSON, r.AwaitToken, r.Result,
		r.Error, r.StartedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return stepflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("stepflow/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM stepflow_runs WHERE id = $1`,
		runID.String(),
	)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: get run: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *run.Run) error {
	contextJSON, invocationsJSON, err := runJSONFields(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE stepflow_runs SET
			workflow = $2, status = $3, current_step = $4, context = $5,
			input = $6, current_input = $7, invocations = $8, await_token = $9,
			result = $10, error = $11, started_at = $12, completed_at = $13,
			updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), r.Workflow, string(r.Status), r.CurrentStep, contextJSON,
		r.Input, r.CurrentInput, invocationsJSON, r.AwaitToken, r.Result,
		r.Error, r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stepflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts run.ListOpts) ([]*run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM stepflow_runs`

	var conds []string
	var args []any
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Workflow != "" {
		args = append(args, opts.Workflow)
		conds = append(conds, fmt.Sprintf("workflow = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run
	for rows.Next() {
		r, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("stepflow/postgres: list runs scan: %w", scanErr)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list runs rows: %w", err)
	}
	return runs, nil
}

// ── helpers ──

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func runJSONFields(r *run.Run) (contextJSON, invocationsJSON []byte, err error) {
	contextJSON, err = json.Marshal(r.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("stepflow/postgres: marshal run context: %w", err)
	}
	if string(contextJSON) == "null" {
		contextJSON = []byte("[]")
	}

	invocationsJSON, err = json.Marshal(r.Invocations)
	if err != nil {
		return nil, nil, fmt.Errorf("stepflow/postgres: marshal run invocations: %w", err)
	}
	if string(invocationsJSON) == "null" {
		invocationsJSON = []byte("{}")
	}
	return contextJSON, invocationsJSON, nil
}

func scanRun(row rowScanner) (*run.Run, error) {
	var (
		idStr, workflow, status, currentStep string
		awaitToken, errText                  string
		contextJSON, invocationsJSON         []byte
		input, currentInput, result          []byte
		startedAt, createdAt, updatedAt      time.Time
		completedAt                          *time.Time
	)

	err := row.Scan(
		&idStr, &workflow, &status, &currentStep, &contextJSON, &input,
		&currentInput, &invocationsJSON, &awaitToken, &result, &errText,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseRunID(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", idStr, err)
	}

	c := run.NewContext()
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, c); err != nil {
			return nil, fmt.Errorf("unmarshal run context: %w", err)
		}
	}

	invocations := make(map[string]int)
	if len(invocationsJSON) > 0 {
		if err := json.Unmarshal(invocationsJSON, &invocations); err != nil {
			return nil, fmt.Errorf("unmarshal run invocations: %w", err)
		}
	}

	return &run.Run{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           parsedID,
		Workflow:     workflow,
		Status:       run.Status(status),
		CurrentStep:  currentStep,
		Context:      c,
		Input:        input,
		CurrentInput: currentInput,
		Invocations:  invocations,
		AwaitToken:   awaitToken,
		Result:       result,
		Error:        errText,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
	}, nil
}
