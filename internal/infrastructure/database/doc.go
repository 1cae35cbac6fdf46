// Package database provides SQLite connection management and embedded
// schema migrations for Fleet Core's durable device state.
//
// The database is opened in WAL mode with a single writer connection,
// which is the recommended configuration for SQLite under concurrent
// read/write load from a single process. Migrations are plain SQL files
// embedded at build time and applied in version order, each in its own
// transaction.
package database
