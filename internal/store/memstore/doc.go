// Package memstore provides in-memory implementations of the store
// interfaces. They mirror the Postgres implementations' compare-and-set
// semantics and back both the unit tests and the broker's database-less
// development mode; they are not durable.
package memstore
