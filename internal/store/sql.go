package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

// SQLStore is a RecordStore backed by PostgreSQL. Records live in one table
// keyed by store identity, with fields as a JSONB document. Batches run in a
// transaction so a single bad record rolls the whole batch back, matching the
// hosted store's all-or-nothing contract.
type SQLStore struct {
	db    *sql.DB
	idGen IDGenerator
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS crm_records (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	fields      JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crm_records_entity_type ON crm_records (entity_type);
`

// NewSQLStore creates a store over an open database handle. A nil idGen
// falls back to UUIDs.
func NewSQLStore(db *sql.DB, idGen IDGenerator) *SQLStore {
	if idGen == nil {
		idGen = uuid.NewString
	}
	return &SQLStore{db: db, idGen: idGen}
}

// Migrate creates the backing table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("failed to run store migration: %w", err)
	}
	return nil
}

// Query fetches records of entityType whose field matches one of values,
// oldest first.
func (s *SQLStore) Query(ctx context.Context, entityType records.EntityType, field string, values []string) ([]*records.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM crm_records
		 WHERE entity_type = $1 AND fields->>$2 = ANY($3)
		 ORDER BY created_at, id`,
		string(entityType), field, pq.Array(values))
	if err != nil {
		return nil, errors.NewStoreQueryFailedError(string(entityType), err)
	}
	defer rows.Close()

	var out []*records.Record
	for rows.Next() {
		var id string
		var fieldsJSON []byte
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, errors.NewStoreQueryFailedError(string(entityType), err)
		}
		fields := map[string]interface{}{}
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return nil, errors.NewStoreQueryFailedError(string(entityType), fmt.Errorf("corrupt fields document for %s: %w", id, err))
		}
		out = append(out, &records.Record{Type: entityType, ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreQueryFailedError(string(entityType), err)
	}
	return out, nil
}

// Insert assigns identities and writes all records in one transaction.
func (s *SQLStore) Insert(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := validateBatch(recs); err != nil {
		return err
	}

	return s.inTx(ctx, "insert", func(tx *sql.Tx) error {
		for _, rec := range recs {
			id := s.idGen()
			fieldsJSON, err := json.Marshal(rec.Fields)
			if err != nil {
				return errors.NewStoreInsertFailedError(string(rec.Type), err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO crm_records (id, entity_type, fields) VALUES ($1, $2, $3)`,
				id, string(rec.Type), fieldsJSON); err != nil {
				return errors.NewStoreInsertFailedError(string(rec.Type), err)
			}
			rec.ID = id
		}
		return nil
	})
}

// Update writes field changes by identity; an unknown identity fails the batch.
func (s *SQLStore) Update(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}

	return s.inTx(ctx, "update", func(tx *sql.Tx) error {
		for _, rec := range recs {
			if rec.ID == "" {
				return errors.NewStoreRecordNotFoundError(string(rec.Type), "<unset>")
			}
			fieldsJSON, err := json.Marshal(rec.Fields)
			if err != nil {
				return errors.NewStoreUpdateFailedError(string(rec.Type), err)
			}
			result, err := tx.ExecContext(ctx,
				`UPDATE crm_records SET fields = $1, updated_at = now() WHERE id = $2 AND entity_type = $3`,
				fieldsJSON, rec.ID, string(rec.Type))
			if err != nil {
				return errors.NewStoreUpdateFailedError(string(rec.Type), err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return errors.NewStoreUpdateFailedError(string(rec.Type), err)
			}
			if affected == 0 {
				return errors.NewStoreRecordNotFoundError(string(rec.Type), rec.ID)
			}
		}
		return nil
	})
}

// Upsert inserts records without identity and updates the rest, one
// transaction. Conflict on identity resolves to an update of the fields
// document.
func (s *SQLStore) Upsert(ctx context.Context, recs []*records.Record, matchField string) error {
	if len(recs) == 0 {
		return nil
	}
	if err := validateBatch(recs); err != nil {
		return err
	}

	return s.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		for _, rec := range recs {
			assigned := false
			if rec.ID == "" {
				rec.ID = s.idGen()
				assigned = true
			}
			fieldsJSON, err := json.Marshal(rec.Fields)
			if err != nil {
				return errors.NewStoreUpsertFailedError(string(rec.Type), err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO crm_records (id, entity_type, fields)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET
					fields = EXCLUDED.fields,
					updated_at = now()`,
				rec.ID, string(rec.Type), fieldsJSON); err != nil {
				if assigned {
					rec.ID = ""
				}
				return errors.NewStoreUpsertFailedError(string(rec.Type), err)
			}
		}
		return nil
	})
}

// Delete removes records by identity; an unknown identity fails the batch.
func (s *SQLStore) Delete(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}

	return s.inTx(ctx, "delete", func(tx *sql.Tx) error {
		for _, rec := range recs {
			if rec.ID == "" {
				return errors.NewStoreRecordNotFoundError(string(rec.Type), "<unset>")
			}
			result, err := tx.ExecContext(ctx,
				`DELETE FROM crm_records WHERE id = $1 AND entity_type = $2`,
				rec.ID, string(rec.Type))
			if err != nil {
				return errors.NewStoreDeleteFailedError(string(rec.Type), err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return errors.NewStoreDeleteFailedError(string(rec.Type), err)
			}
			if affected == 0 {
				return errors.NewStoreRecordNotFoundError(string(rec.Type), rec.ID)
			}
		}
		return nil
	})
}

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreConnectionFailedError(fmt.Errorf("failed to begin %s transaction: %w", op, err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreConnectionFailedError(fmt.Errorf("failed to commit %s transaction: %w", op, err))
	}
	return nil
}
