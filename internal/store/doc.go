// Package store implements the Durable Local Store: a small key/value
// interface used to persist the Mutation Queue across restarts.
//
// Backends:
//   - Memory: process-local map, for tests and ephemeral clients
//   - File: one file per key, written atomically (temp file + rename)
//   - Postgres: key/value table over a pgxpool pool
//   - Redis: string keys under a configurable prefix
package store
