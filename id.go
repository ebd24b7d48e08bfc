package stepflow

import "github.com/xraph/stepflow/id"

// ID is the primary identifier type for all stepflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
