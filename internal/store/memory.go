package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

// MemoryStore is an in-memory RecordStore used by tests and local
// development. It mirrors the hosted store's contract: it owns identity
// assignment, does not enforce natural-key uniqueness, and applies batches
// all-or-nothing.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[records.EntityType][]*records.Record
	idGen IDGenerator
}

// NewMemoryStore creates an empty store. A nil idGen falls back to UUIDs;
// tests inject a deterministic generator.
func NewMemoryStore(idGen IDGenerator) *MemoryStore {
	if idGen == nil {
		idGen = uuid.NewString
	}
	return &MemoryStore{
		data:  map[records.EntityType][]*records.Record{},
		idGen: idGen,
	}
}

// Query returns snapshot copies of matching records, insertion order.
func (s *MemoryStore) Query(ctx context.Context, entityType records.EntityType, field string, values []string) ([]*records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}

	var out []*records.Record
	for _, rec := range s.data[entityType] {
		if wanted[rec.GetString(field)] {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Insert assigns identity to each record in place and persists a copy.
func (s *MemoryStore) Insert(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := validateBatch(recs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		rec.ID = s.idGen()
		s.data[rec.Type] = append(s.data[rec.Type], rec.Clone())
	}
	return nil
}

// Update persists field changes by identity.
func (s *MemoryStore) Update(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if rec.ID == "" {
			return errors.NewStoreRecordNotFoundError(string(rec.Type), "<unset>")
		}
		stored := s.findLocked(rec.Type, rec.ID)
		if stored == nil {
			return errors.NewStoreRecordNotFoundError(string(rec.Type), rec.ID)
		}
		stored.Fields = rec.Clone().Fields
	}
	return nil
}

// Upsert inserts records without identity and updates the rest, one batch.
func (s *MemoryStore) Upsert(ctx context.Context, recs []*records.Record, matchField string) error {
	if len(recs) == 0 {
		return nil
	}
	if err := validateBatch(recs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if rec.ID != "" {
			stored := s.findLocked(rec.Type, rec.ID)
			if stored == nil {
				return errors.NewStoreRecordNotFoundError(string(rec.Type), rec.ID)
			}
			stored.Fields = rec.Clone().Fields
			continue
		}
		rec.ID = s.idGen()
		s.data[rec.Type] = append(s.data[rec.Type], rec.Clone())
	}
	return nil
}

// Delete removes records by identity; deleting an unknown identity fails.
func (s *MemoryStore) Delete(ctx context.Context, recs []*records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		list := s.data[rec.Type]
		idx := -1
		for i, stored := range list {
			if stored.ID == rec.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.NewStoreRecordNotFoundError(string(rec.Type), rec.ID)
		}
		s.data[rec.Type] = append(list[:idx], list[idx+1:]...)
	}
	return nil
}

// Count returns the number of stored records of a type.
func (s *MemoryStore) Count(entityType records.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[entityType])
}

func (s *MemoryStore) findLocked(entityType records.EntityType, id string) *records.Record {
	for _, rec := range s.data[entityType] {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// validateBatch applies store-side required-field validation; any failing
// record rejects the whole batch.
func validateBatch(recs []*records.Record) error {
	for i, rec := range recs {
		field := records.KeyField(rec.Type)
		if field == "" {
			continue
		}
		if strings.TrimSpace(rec.GetString(field)) == "" {
			return errors.NewStoreBatchRejectedError(string(rec.Type),
				fmt.Sprintf("record %d: required field %s missing", i, field))
		}
	}
	return nil
}
