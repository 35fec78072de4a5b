// Package store defines the record store collaborator: the external service
// owning persisted identity, plus the implementations shipped with crm-sync
// (REST, PostgreSQL, in-memory, cached).
package store

import (
	"context"

	"crm-sync/internal/records"
)

// RecordStore is the persistence collaborator for CRM records. Transactional
// atomicity and retry-on-contention are the store's concern; callers issue a
// single batch call per operation and propagate errors unchanged.
//
// All errors returned by implementations are *errors.StandardError values
// with STORE_* codes.
type RecordStore interface {
	// Query returns all records of entityType whose field matches one of
	// values. An empty result is not an error.
	Query(ctx context.Context, entityType records.EntityType, field string, values []string) ([]*records.Record, error)

	// Insert persists new records and assigns identity to each in place.
	Insert(ctx context.Context, recs []*records.Record) error

	// Update persists field changes by identity.
	Update(ctx context.Context, recs []*records.Record) error

	// Upsert inserts records without identity and updates the rest in one
	// batch call. matchField names the natural key used by stores that
	// match on a field rather than identity.
	Upsert(ctx context.Context, recs []*records.Record, matchField string) error

	// Delete removes records by identity.
	Delete(ctx context.Context, recs []*records.Record) error
}

// IDGenerator produces store identities for implementations that assign them
// locally. It is injected so tests stay deterministic.
type IDGenerator func() string
