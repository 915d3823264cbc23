// Package postgres provides the PostgreSQL implementations of the storage
// interfaces the engine and services depend on. It owns the claim, reaper,
// and completion SQL and the mapping between domain entities and rows.
package postgres
