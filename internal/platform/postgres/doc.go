// Package postgres provides PostgreSQL implementations of the store
// interfaces using database/sql over the pgx stdlib driver. All
// status-changing writes are expressed as status-guarded UPDATEs so the
// database enforces the broker's compare-and-set semantics.
package postgres
