package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/session"
)

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	sID := sess.ID.String()
	key := sessionKey(sID)

	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("stepflow/redis: marshal session messages: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", sID,
		"run_id", sess.RunID.String(),
		"title", sess.Title,
		"messages", string(messagesJSON),
		"created_at", sess.CreatedAt.Format(time.RFC3339Nano),
		"updated_at", sess.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, runSessionsKey(sess.RunID.String()), sID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/redis: save session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	vals, err := s.client.HGetAll(ctx, sessionKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get session: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrSessionNotFound
	}
	return mapToSession(vals)
}

// AppendMessage appends a message to a session's transcript. The
// read-modify-write of the messages field runs under WATCH so concurrent
// appends retry instead of overwriting each other.
func (s *Store) AppendMessage(ctx context.Context, sessionID id.SessionID, msg session.Message) error {
	key := sessionKey(sessionID.String())

	const maxRetries = 5
	for range maxRetries {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.HGet(ctx, key, "messages").Result()
			if err == goredis.Nil {
				return stepflow.ErrSessionNotFound
			}
			if err != nil {
				return fmt.Errorf("stepflow/redis: read session messages: %w", err)
			}

			var messages []session.Message
			if raw != "" && raw != "null" {
				if err := json.Unmarshal([]byte(raw), &messages); err != nil {
					return fmt.Errorf("stepflow/redis: unmarshal session messages: %w", err)
				}
			}
			messages = append(messages, msg)
			data, err := json.Marshal(messages)
			if err != nil {
				return fmt.Errorf("stepflow/redis: marshal session messages: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key,
					"messages", string(data),
					"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
				)
				return nil
			})
			return err
		}, key)
		if err == nil {
			return nil
		}
		if err == goredis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("stepflow/redis: append message: %w", goredis.TxFailedErr)
}

// ListSessionsByRun returns the sessions attached to a run, oldest first.
func (s *Store) ListSessionsByRun(ctx context.Context, runID id.RunID) ([]*session.Session, error) {
	ids, err := s.client.SMembers(ctx, runSessionsKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: list sessions smembers: %w", err)
	}

	var sessions []*session.Session
	for _, sID := range ids {
		vals, getErr := s.client.HGetAll(ctx, sessionKey(sID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		sess, convErr := mapToSession(vals)
		if convErr != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, k int) bool {
		return sessions[i].CreatedAt.Before(sessions[k].CreatedAt)
	})
	return sessions, nil
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	sID := sessionID.String()
	key := sessionKey(sID)

	runID, err := s.client.HGet(ctx, key, "run_id").Result()
	if err != nil {
		if err == goredis.Nil {
			return stepflow.ErrSessionNotFound
		}
		return fmt.Errorf("stepflow/redis: delete session lookup: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, runSessionsKey(runID), sID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/redis: delete session: %w", err)
	}
	return nil
}

func mapToSession(m map[string]string) (*session.Session, error) {
	sID, err := id.ParseSessionID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse session id: %w", err)
	}
	rID, err := id.ParseRunID(m["run_id"])
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse session run id: %w", err)
	}

	var messages []session.Message
	if v := m["messages"]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &messages); err != nil {
			return nil, fmt.Errorf("stepflow/redis: unmarshal session messages: %w", err)
		}
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	return &session.Session{
		Entity: stepflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       sID,
		RunID:    rID,
		Title:    m["title"],
		Messages: messages,
	}, nil
}
