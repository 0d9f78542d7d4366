// Package store defines the persistence interfaces and shared error
// taxonomy for the broker's durable state: tasks, dead letters, consumer
// registrations and the singleton file lock. Implementations live in
// internal/platform/postgres (production) and internal/store/memstore
// (tests).
package store
