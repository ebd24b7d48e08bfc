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

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	m, err := toRunModel(r)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(colRuns).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return stepflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("stepflow/mongo: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*run.Run, error) {
	var m runModel
	err := s.db.Collection(colRuns).FindOne(ctx, bson.M{"_id": runID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stepflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("stepflow/mongo: get run: %w", err)
	}
	return fromRunModel(&m)
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *run.Run) error {
	m, err := toRunModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := s.db.Collection(colRuns).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: update run: %w", err)
	}
	if res.MatchedCount == 0 {
		return stepflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts run.ListOpts) ([]*run.Run, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Workflow != "" {
		filter["workflow"] = opts.Workflow
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colRuns).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list runs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []runModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list runs decode: %w", err)
	}

	runs := make([]*run.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("stepflow/mongo: list runs convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
}
