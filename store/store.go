package store

import (
	"context"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/state"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (bun, redis, mongo, memory) implements all of them.
type Store interface {
	state.Store
	checkpoint.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
