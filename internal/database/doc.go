// Package database provides PostgreSQL connection pool management for the
// durable store. Pools are created from config.DBConfig and verified with a
// ping before they are handed out.
package database
