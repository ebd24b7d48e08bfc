package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// AppendRecord appends an execution record. Records are immutable.
func (s *Store) AppendRecord(ctx context.Context, rec *run.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_records (id, run_id, workflow, type, step, status, data, error, seq, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID.String(), rec.RunID.String(), rec.Workflow, string(rec.Type),
		rec.Step, string(rec.Status), rec.Data, rec.Error, rec.Seq, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: append record: %w", err)
	}
	return nil
}

// ListRecords returns all records for a run in Seq order.
func (s *Store) ListRecords(ctx context.Context, runID id.RunID) ([]*run.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, workflow, type, step, status, data, error, seq, recorded_at
		FROM stepflow_records WHERE run_id = $1 ORDER BY seq ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list records: %w", err)
	}
	defer rows.Close()

	var records []*run.Record
	for rows.Next() {
		var (
			idStr, runIDStr, workflow, typ, step, status, errText string
			data                                                  []byte
			seq                                                   int64
			recordedAt                                            time.Time
		)
		if err := rows.Scan(&idStr, &runIDStr, &workflow, &typ, &step, &status, &data, &errText, &seq, &recordedAt); err != nil {
			return nil, fmt.Errorf("stepflow/postgres: list records scan: %w", err)
		}

		parsedID, err := id.ParseRecordID(idStr)
		if err != nil {
			return nil, fmt.Errorf("stepflow/postgres: parse record id %q: %w", idStr, err)
		}
		parsedRunID, err := id.ParseRunID(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("stepflow/postgres: parse record run id %q: %w", runIDStr, err)
		}

		records = append(records, &run.Record{
			ID:        parsedID,
			RunID:     parsedRunID,
			Workflow:  workflow,
			Type:      run.RecordType(typ),
			Step:      step,
			Status:    run.RecordStatus(status),
			Data:      data,
			Error:     errText,
			Seq:       seq,
			Timestamp: recordedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list records rows: %w", err)
	}
	return records, nil
}
