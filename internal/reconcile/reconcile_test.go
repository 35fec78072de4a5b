package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

func accountWithID(id, name string) *records.Record {
	rec := records.NewAccount(name)
	rec.ID = id
	return rec
}

func resultKeys(t *testing.T, res *Result) []string {
	t.Helper()
	keys := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		keys = append(keys, rec.GetString(records.FieldName))
	}
	return keys
}

func TestReconcileByKey_EmptyDesired(t *testing.T) {
	existing := []*records.Record{accountWithID("a1", "GenePoint")}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName, nil, Defaults{}, existing)

	require.NoError(t, err)
	assert.Empty(t, res.Records, "empty desired set yields an empty result regardless of the snapshot")
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Matched)
}

func TestReconcileByKey_MissingKeyField(t *testing.T) {
	_, err := ReconcileByKey(records.EntityAccount, "", []string{"GenePoint"}, Defaults{}, nil)

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("VALIDATION_FAILED"), stdErr.Code)
}

func TestReconcileByKey_BlankDesiredKey(t *testing.T) {
	tests := []struct {
		name string
		keys []string
	}{
		{name: "empty string", keys: []string{"GenePoint", ""}},
		{name: "whitespace only", keys: []string{"  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReconcileByKey(records.EntityAccount, records.FieldName, tt.keys, Defaults{}, nil)

			require.Error(t, err)
			stdErr, ok := err.(*errors.StandardError)
			require.True(t, ok)
			assert.Equal(t, errors.ErrorCode("VALIDATION_FAILED"), stdErr.Code)
		})
	}
}

func TestReconcileByKey_AllCreated(t *testing.T) {
	defaults := Defaults{
		OnCreate: FieldPatch{
			records.FieldDescription: "synced",
			records.FieldIndustry:    "Biotech",
		},
	}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "Express Logistics"}, defaults, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Zero(t, res.Matched)
	assert.Empty(t, res.DuplicateKeys)
	assert.Equal(t, []string{"GenePoint", "Express Logistics"}, resultKeys(t, res))

	for _, rec := range res.Records {
		assert.Equal(t, records.EntityAccount, rec.Type)
		assert.Empty(t, rec.ID, "identity is assigned by the store, never here")
		assert.Equal(t, "synced", rec.GetString(records.FieldDescription))
		assert.Equal(t, "Biotech", rec.GetString(records.FieldIndustry))
	}
}

func TestReconcileByKey_FullMatchLeavesRecordsUntouched(t *testing.T) {
	existing := []*records.Record{
		accountWithID("a1", "GenePoint"),
		accountWithID("a2", "Express Logistics"),
	}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "Express Logistics"}, Defaults{}, existing)

	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, res.Matched)
	require.Len(t, res.Records, 2)

	// Nil OnExisting means matched snapshot records pass through untouched,
	// reference-identical to the input.
	assert.Same(t, existing[0], res.Records[0])
	assert.Same(t, existing[1], res.Records[1])
}

func TestReconcileByKey_PartialMatch(t *testing.T) {
	existing := []*records.Record{accountWithID("a1", "GenePoint")}
	defaults := Defaults{OnCreate: FieldPatch{records.FieldDescription: "new"}}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "Dickenson"}, defaults, existing)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []string{"GenePoint", "Dickenson"}, resultKeys(t, res))

	assert.Equal(t, "a1", res.Records[0].ID)
	assert.Empty(t, res.Records[0].GetString(records.FieldDescription), "matched record keeps its fields")
	assert.Equal(t, "new", res.Records[1].GetString(records.FieldDescription))
}

func TestReconcileByKey_OnExistingPatchesMatched(t *testing.T) {
	existing := []*records.Record{accountWithID("a1", "GenePoint")}
	defaults := Defaults{
		OnExisting: FieldPatch{records.FieldDescription: "refreshed"},
	}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint"}, defaults, existing)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	// Patched in place on the snapshot record.
	assert.Equal(t, "refreshed", existing[0].GetString(records.FieldDescription))
	assert.Same(t, existing[0], res.Records[0])
}

func TestReconcileByKey_DuplicateDesiredCollapse(t *testing.T) {
	res, err := ReconcileByKey(records.EntityContact, records.FieldLastName,
		[]string{"Doe", "Doe"}, Defaults{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Doe", res.Records[0].GetString(records.FieldLastName))
}

func TestReconcileByKey_DuplicateDesiredCollapseToMatched(t *testing.T) {
	existing := []*records.Record{accountWithID("a1", "GenePoint")}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "GenePoint", "Dickenson", "Dickenson"}, Defaults{}, existing)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []string{"GenePoint", "Dickenson"}, resultKeys(t, res))
}

func TestReconcileByKey_DuplicateSnapshotKeys(t *testing.T) {
	first := accountWithID("a1", "GenePoint")
	second := accountWithID("a2", "GenePoint")
	existing := []*records.Record{first, second}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint"}, Defaults{}, existing)

	require.NoError(t, err)
	assert.Equal(t, []string{"GenePoint"}, res.DuplicateKeys)
	require.Len(t, res.Records, 1)
	// First record in snapshot order is canonical; the second is never
	// duplicated into the result.
	assert.Same(t, first, res.Records[0])
	assert.Equal(t, 1, res.Matched)
}

func TestReconcileByKey_SnapshotKeysOutsideDesired(t *testing.T) {
	existing := []*records.Record{
		accountWithID("a1", "GenePoint"),
		accountWithID("a2", "Pyramid"),
	}
	defaults := Defaults{OnExisting: FieldPatch{records.FieldDescription: "swept"}}

	res, err := ReconcileByKey(records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "Dickenson"}, defaults, existing)

	require.NoError(t, err)
	// One record per key in desired union existing: GenePoint (matched),
	// Dickenson (created), Pyramid (snapshot only).
	assert.Equal(t, []string{"GenePoint", "Dickenson", "Pyramid"}, resultKeys(t, res))
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, "swept", existing[1].GetString(records.FieldDescription))
}

func TestReconcileByKey_Idempotent(t *testing.T) {
	defaults := Defaults{OnCreate: FieldPatch{records.FieldDescription: "synced"}}
	keys := []string{"GenePoint", "Express Logistics"}

	first, err := ReconcileByKey(records.EntityAccount, records.FieldName, keys, defaults, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	// Simulate the store persisting the first pass, then reconcile again
	// against that snapshot.
	for i, rec := range first.Records {
		rec.ID = string(rune('a' + i))
	}
	second, err := ReconcileByKey(records.EntityAccount, records.FieldName, keys, defaults, first.Records)
	require.NoError(t, err)

	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Matched)
	assert.Equal(t, resultKeys(t, first), resultKeys(t, second))
}

func TestReconcileByKey_OpportunityScenario(t *testing.T) {
	// One opportunity already at a later stage, one missing. The existing
	// record keeps its stage; the new one gets the creation defaults.
	existing := []*records.Record{
		func() *records.Record {
			rec := records.NewOpportunity("GenePoint SLA", "acc-1")
			rec.ID = "o1"
			rec.Set(records.FieldStageName, "Qualification-A")
			return rec
		}(),
	}
	defaults := Defaults{
		OnCreate: FieldPatch{
			records.FieldStageName: "Prospecting",
			records.FieldAccountID: "acc-1",
		},
	}

	res, err := ReconcileByKey(records.EntityOpportunity, records.FieldName,
		[]string{"GenePoint SLA", "GenePoint Generators"}, defaults, existing)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Matched)

	assert.Equal(t, "Qualification-A", res.Records[0].GetString(records.FieldStageName))
	assert.Equal(t, "Prospecting", res.Records[1].GetString(records.FieldStageName))
	assert.Equal(t, "acc-1", res.Records[1].GetString(records.FieldAccountID))
}
