// Package store implements persistence for networks, devices, status history
// and alarms.
//
// SQLRepository talks to SQLite (mattn/go-sqlite3) or PostgreSQL (pgx stdlib)
// through database/sql with one shared set of queries; MemoryRepository keeps
// everything in process and backs the "memory" driver and the service tests.
// Both expose the Repository interface the presence services depend on.
package store
