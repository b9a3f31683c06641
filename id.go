package payflow

import "github.com/xraph/payflow/id"

// ID is the primary identifier type for all Payflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
