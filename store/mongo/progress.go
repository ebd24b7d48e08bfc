package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/progress"
)

// SaveProgress inserts or replaces the progress snapshot for a run.
func (s *Store) SaveProgress(ctx context.Context, p *progress.Progress) error {
	m := toProgressModel(p)

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(colProgress).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: save progress: %w", err)
	}
	return nil
}

// GetProgress returns the progress snapshot for a run.
func (s *Store) GetProgress(ctx context.Context, runID id.RunID) (*progress.Progress, error) {
	var m progressModel
	err := s.db.Collection(colProgress).FindOne(ctx, bson.M{"_id": runID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stepflow.ErrProgressNotFound
		}
		return nil, fmt.Errorf("stepflow/mongo: get progress: %w", err)
	}
	return fromProgressModel(&m)
}

// DeleteProgress removes the progress snapshot for a run.
func (s *Store) DeleteProgress(ctx context.Context, runID id.RunID) error {
	res, err := s.db.Collection(colProgress).DeleteOne(ctx, bson.M{"_id": runID.String()})
	if err != nil {
		return fmt.Errorf("stepflow/mongo: delete progress: %w", err)
	}
	if res.DeletedCount == 0 {
		return stepflow.ErrProgressNotFound
	}
	return nil
}
