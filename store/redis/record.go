package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// AppendRecord appends an execution record to the run's record set.
func (s *Store) AppendRecord(ctx context.Context, rec *run.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("stepflow/redis: marshal record: %w", err)
	}

	// Score by sequence so ZRange reads come back in dispatch order.
	err = s.client.ZAdd(ctx, recordsKey(rec.RunID.String()), redis.Z{
		Score:  float64(rec.Seq),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("stepflow/redis: append record: %w", err)
	}
	return nil
}

// ListRecords returns all records for a run in Seq order.
func (s *Store) ListRecords(ctx context.Context, runID id.RunID) ([]*run.Record, error) {
	members, err := s.client.ZRange(ctx, recordsKey(runID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: list records: %w", err)
	}

	records := make([]*run.Record, 0, len(members))
	for _, member := range members {
		var rec run.Record
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
