package redis

import "fmt"

// Redis key naming conventions for stepflow data.
// All keys are prefixed with "stepflow:" to avoid collisions.

const keyPrefix = "stepflow:"

// ── Run keys ──

// runKey returns the key for a run entity: stepflow:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// ── Suspension keys ──

// suspensionKey returns the key for suspension data: stepflow:suspension:{token}
func suspensionKey(token string) string { return keyPrefix + "suspension:" + token }

// ── Async step state keys ──

// asyncStateKey returns the key for async step state: stepflow:async:{runID}:{step}
func asyncStateKey(runID, step string) string {
	return fmt.Sprintf("%sasync:%s:%s", keyPrefix, runID, step)
}

// ── Record keys ──

// recordsKey returns the Sorted Set key holding a run's execution records,
// scored by dispatch sequence: stepflow:records:{runID}
func recordsKey(runID string) string { return keyPrefix + "records:" + runID }

// ── Session keys ──

// sessionKey returns the key for a session entity: stepflow:session:{id}
func sessionKey(id string) string { return keyPrefix + "session:" + id }

// runSessionsKey returns the Set key tracking session IDs for a run.
func runSessionsKey(runID string) string { return keyPrefix + "run_sessions:" + runID }

// ── Progress keys ──

// progressKey returns the key for a run's progress snapshot: stepflow:progress:{runID}
func progressKey(runID string) string { return keyPrefix + "progress:" + runID }
