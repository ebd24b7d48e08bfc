package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// AppendRecord appends an execution record. Records are immutable.
func (s *Store) AppendRecord(ctx context.Context, rec *run.Record) error {
	_, err := s.db.Collection(colRecords).InsertOne(ctx, toRecordModel(rec))
	if err != nil {
		return fmt.Errorf("stepflow/mongo: append record: %w", err)
	}
	return nil
}

// ListRecords returns all records for a run in Seq order.
func (s *Store) ListRecords(ctx context.Context, runID id.RunID) ([]*run.Record, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := s.db.Collection(colRecords).Find(ctx, bson.M{"run_id": runID.String()}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list records: %w", err)
	}
	defer cursor.Close(ctx)

	var models []recordModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list records decode: %w", err)
	}

	records := make([]*run.Record, 0, len(models))
	for i := range models {
		rec, convErr := fromRecordModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("stepflow/mongo: list records convert: %w", convErr)
		}
		records = append(records, rec)
	}
	return records, nil
}
