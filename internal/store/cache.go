package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

// CachedStore is a read-through cache in front of another RecordStore.
// Query results are cached in Redis per entity type; any mutation bumps the
// entity type's generation counter, which invalidates every cached query for
// that type at once without key scans.
type CachedStore struct {
	inner RecordStore
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedStore wraps inner with a Redis query cache. The Redis connection
// is verified up front; an unreachable cache is a construction error rather
// than a per-query surprise.
func NewCachedStore(ctx context.Context, inner RecordStore, rdb *redis.Client, ttl time.Duration) (*CachedStore, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheUnavailableError(err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl}, nil
}

// Query serves from cache when possible, falling through to the inner store
// on a miss. Cache read failures degrade to the inner store; cache write
// failures are ignored.
func (s *CachedStore) Query(ctx context.Context, entityType records.EntityType, field string, values []string) ([]*records.Record, error) {
	key, err := s.queryKey(ctx, entityType, field, values)
	if err == nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var recs []*records.Record
			if err := json.Unmarshal([]byte(cached), &recs); err == nil {
				for _, rec := range recs {
					rec.Type = entityType
				}
				return recs, nil
			}
		}
	}

	recs, err := s.inner.Query(ctx, entityType, field, values)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if payload, err := json.Marshal(recs); err == nil {
			_ = s.rdb.Set(ctx, key, payload, s.ttl).Err()
		}
	}
	return recs, nil
}

// Insert writes through and invalidates the entity type's cached queries.
func (s *CachedStore) Insert(ctx context.Context, recs []*records.Record) error {
	if err := s.inner.Insert(ctx, recs); err != nil {
		return err
	}
	s.invalidate(ctx, recs)
	return nil
}

// Update writes through and invalidates the entity type's cached queries.
func (s *CachedStore) Update(ctx context.Context, recs []*records.Record) error {
	if err := s.inner.Update(ctx, recs); err != nil {
		return err
	}
	s.invalidate(ctx, recs)
	return nil
}

// Upsert writes through and invalidates the entity type's cached queries.
func (s *CachedStore) Upsert(ctx context.Context, recs []*records.Record, matchField string) error {
	if err := s.inner.Upsert(ctx, recs, matchField); err != nil {
		return err
	}
	s.invalidate(ctx, recs)
	return nil
}

// Delete writes through and invalidates the entity type's cached queries.
func (s *CachedStore) Delete(ctx context.Context, recs []*records.Record) error {
	if err := s.inner.Delete(ctx, recs); err != nil {
		return err
	}
	s.invalidate(ctx, recs)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, recs []*records.Record) {
	seen := map[records.EntityType]bool{}
	for _, rec := range recs {
		if seen[rec.Type] {
			continue
		}
		seen[rec.Type] = true
		_ = s.rdb.Incr(ctx, generationKey(rec.Type)).Err()
	}
}

// queryKey builds the cache key for one query under the entity type's
// current generation.
func (s *CachedStore) queryKey(ctx context.Context, entityType records.EntityType, field string, values []string) (string, error) {
	gen, err := s.rdb.Get(ctx, generationKey(entityType)).Result()
	if err == redis.Nil {
		gen = "0"
	} else if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(field + "\x00" + strings.Join(values, "\x00")))
	return fmt.Sprintf("crm-sync:query:%s:%s:%s", entityType, gen, hex.EncodeToString(sum[:8])), nil
}

func generationKey(entityType records.EntityType) string {
	return fmt.Sprintf("crm-sync:gen:%s", entityType)
}
