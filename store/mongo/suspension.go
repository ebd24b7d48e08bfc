package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/run"
)

// SaveSuspension persists suspension data keyed by its await token. Saving
// an existing token replaces the entry.
func (s *Store) SaveSuspension(ctx context.Context, susp *run.Suspension) error {
	m := toSuspensionModel(susp)

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(colSuspensions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: save suspension: %w", err)
	}
	return nil
}

// GetSuspension retrieves suspension data by await token.
func (s *Store) GetSuspension(ctx context.Context, token string) (*run.Suspension, error) {
	var m suspensionModel
	err := s.db.Collection(colSuspensions).FindOne(ctx, bson.M{"_id": token}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stepflow.ErrSuspensionNotFound
		}
		return nil, fmt.Errorf("stepflow/mongo: get suspension: %w", err)
	}
	return fromSuspensionModel(&m)
}

// DeleteSuspension removes suspension data once the run has resumed.
func (s *Store) DeleteSuspension(ctx context.Context, token string) error {
	res, err := s.db.Collection(colSuspensions).DeleteOne(ctx, bson.M{"_id": token})
	if err != nil {
		return fmt.Errorf("stepflow/mongo: delete suspension: %w", err)
	}
	if res.DeletedCount == 0 {
		return stepflow.ErrSuspensionNotFound
	}
	return nil
}
