// Package store defines the aggregate persistence interface.
//
// Each subsystem (workflow state, checkpoint and review queue) defines
// its own store interface. The composite [Store] composes them all. A
// single backend need only implement Store to satisfy every
// subsystem's persistence contract.
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/bun — PostgreSQL backend using the Bun ORM
//   - store/redis — Redis backend
//   - store/mongo — MongoDB backend
//
// # Usage
//
// Backends wrap a caller-owned client. For Postgres:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
