// Package reconcile implements find-or-create reconciliation of desired CRM
// records against a store snapshot, matched by natural key.
package reconcile

import (
	"strings"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

// FieldPatch is a set of field assignments applied to a record.
type FieldPatch map[string]interface{}

// Defaults configures how reconciliation populates records. OnCreate is
// applied to newly constructed records; OnExisting, when non-nil, is applied
// in place to matched records. A nil OnExisting leaves matched records
// untouched.
type Defaults struct {
	OnCreate   FieldPatch
	OnExisting FieldPatch
}

// Result is the outcome of one reconciliation: the full record set ready for
// a single batch upsert, with exactly one record per unique key.
type Result struct {
	Records []*records.Record
	Created int
	Matched int

	// DuplicateKeys lists keys that appeared more than once in the store
	// snapshot. The first record under such a key is canonical; the rest are
	// left untouched and never duplicated in Records. The tie-break is
	// arbitrary, so callers should treat a non-empty list as ambiguity to
	// surface rather than resolve.
	DuplicateKeys []string
}

// ReconcileByKey partitions desiredKeys into already-present and missing
// against the supplied snapshot and returns the combined record set. It is a
// pure function: no store calls happen here, and persistence of the result is
// the caller's responsibility via one batch upsert.
//
// Duplicate desired keys collapse to one record, first-seen order preserved.
// An empty desired set yields an empty result regardless of the snapshot.
func ReconcileByKey(entityType records.EntityType, keyField string, desiredKeys []string, defaults Defaults, existing []*records.Record) (*Result, error) {
	if keyField == "" {
		return nil, errors.NewValidationError("keyField", "matching key field is required")
	}

	res := &Result{}
	if len(desiredKeys) == 0 {
		return res, nil
	}

	// Index the snapshot by key; first record per key is canonical.
	canonical := make(map[string]*records.Record, len(existing))
	existingOrder := make([]string, 0, len(existing))
	dupes := map[string]bool{}
	for _, rec := range existing {
		key := rec.GetString(keyField)
		if _, seen := canonical[key]; seen {
			if !dupes[key] {
				dupes[key] = true
				res.DuplicateKeys = append(res.DuplicateKeys, key)
			}
			continue
		}
		canonical[key] = rec
		existingOrder = append(existingOrder, key)
	}

	desired := make(map[string]bool, len(desiredKeys))
	for _, key := range desiredKeys {
		if strings.TrimSpace(key) == "" {
			return nil, errors.NewValidationError(keyField, "natural key must not be empty")
		}
		if desired[key] {
			continue // duplicates collapse
		}
		desired[key] = true

		if rec, ok := canonical[key]; ok {
			if defaults.OnExisting != nil {
				rec.Apply(defaults.OnExisting)
			}
			res.Records = append(res.Records, rec)
			res.Matched++
			continue
		}

		rec := records.New(entityType, defaults.OnCreate)
		rec.Set(keyField, key)
		res.Records = append(res.Records, rec)
		res.Created++
	}

	// Snapshot records under keys outside the desired set still belong to the
	// result: one record per key in desired union existing.
	for _, key := range existingOrder {
		if desired[key] {
			continue
		}
		rec := canonical[key]
		if defaults.OnExisting != nil {
			rec.Apply(defaults.OnExisting)
		}
		res.Records = append(res.Records, rec)
		res.Matched++
	}

	return res, nil
}
