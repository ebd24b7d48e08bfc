package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/session"
)

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	m := toSessionModel(sess)

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(colSessions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: save session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	var m sessionModel
	err := s.db.Collection(colSessions).FindOne(ctx, bson.M{"_id": sessionID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stepflow.ErrSessionNotFound
		}
		return nil, fmt.Errorf("stepflow/mongo: get session: %w", err)
	}
	return fromSessionModel(&m)
}

// AppendMessage appends a message to a session's transcript with a
// single $push, so concurrent appends never clobber each other.
func (s *Store) AppendMessage(ctx context.Context, sessionID id.SessionID, msg session.Message) error {
	update := bson.M{
		"$push": bson.M{"messages": messageModel{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.db.Collection(colSessions).UpdateOne(ctx, bson.M{"_id": sessionID.String()}, update)
	if err != nil {
		return fmt.Errorf("stepflow/mongo: append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return stepflow.ErrSessionNotFound
	}
	return nil
}

// ListSessionsByRun returns the sessions attached to a run, oldest first.
func (s *Store) ListSessionsByRun(ctx context.Context, runID id.RunID) ([]*session.Session, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(colSessions).Find(ctx, bson.M{"run_id": runID.String()}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var models []sessionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("stepflow/mongo: list sessions decode: %w", err)
	}

	sessions := make([]*session.Session, 0, len(models))
	for i := range models {
		sess, convErr := fromSessionModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("stepflow/mongo: list sessions convert: %w", convErr)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.db.Collection(colSessions).DeleteOne(ctx, bson.M{"_id": sessionID.String()})
	if err != nil {
		return fmt.Errorf("stepflow/mongo: delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return stepflow.ErrSessionNotFound
	}
	return nil
}
