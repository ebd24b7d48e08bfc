package stepflow

import "time"

// Entity holds the persistence bookkeeping shared by all stored aggregates.
// Embed it in stored types; constructors stamp it and stores refresh
// UpdatedAt on every write. Timestamps are always UTC.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch refreshes UpdatedAt to the current UTC time.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
