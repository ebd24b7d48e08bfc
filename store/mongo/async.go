package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// SaveAsyncState persists partial progress for a run/step pair, replacing
// any previous state.
func (s *Store) SaveAsyncState(ctx context.Context, st *run.AsyncState) error {
	m := toAsyncStateModel(st)

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(colAsyncStates).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: save async state: %w", err)
	}
	return nil
}

// GetAsyncState retrieves partial progress for a run/step pair.
func (s *Store) GetAsyncState(ctx context.Context, runID id.RunID, step string) (*run.AsyncState, error) {
	var m asyncStateModel
	err := s.db.Collection(colAsyncStates).FindOne(ctx, bson.M{"_id": asyncStateID(runID, step)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stepflow.ErrAsyncStateNotFound
		}
		return nil, fmt.Errorf("stepflow/mongo: get async state: %w", err)
	}
	return fromAsyncStateModel(&m)
}

// DeleteAsyncState clears partial progress for a run/step pair.
func (s *Store) DeleteAsyncState(ctx context.Context, runID id.RunID, step string) error {
	res, err := s.db.Collection(colAsyncStates).DeleteOne(ctx, bson.M{"_id": asyncStateID(runID, step)})
	if err != nil {
		return fmt.Errorf("stepflow/mongo: delete async state: %w", err)
	}
	if res.DeletedCount == 0 {
		return stepflow.ErrAsyncStateNotFound
	}
	return nil
}
