package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

func testIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("mem-%d", n)
	}
}

func TestMemoryStore_InsertAssignsIdentity(t *testing.T) {
	st := NewMemoryStore(testIDs())
	recs := []*records.Record{
		records.NewAccount("GenePoint"),
		records.NewAccount("Pyramid"),
	}

	require.NoError(t, st.Insert(context.Background(), recs))

	assert.Equal(t, "mem-1", recs[0].ID)
	assert.Equal(t, "mem-2", recs[1].ID)
	assert.Equal(t, 2, st.Count(records.EntityAccount))
}

func TestMemoryStore_InsertRejectsBatchOnInvalidRecord(t *testing.T) {
	st := NewMemoryStore(testIDs())
	recs := []*records.Record{
		records.NewAccount("GenePoint"),
		records.NewAccount(""),
	}

	err := st.Insert(context.Background(), recs)

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("STORE_BATCH_REJECTED"), stdErr.Code)
	assert.Zero(t, st.Count(records.EntityAccount), "batches apply all-or-nothing")
	assert.Empty(t, recs[0].ID)
}

func TestMemoryStore_QueryMatchesFieldValues(t *testing.T) {
	st := NewMemoryStore(testIDs())
	require.NoError(t, st.Insert(context.Background(), []*records.Record{
		records.NewAccount("GenePoint"),
		records.NewAccount("Pyramid"),
		records.NewAccount("Dickenson"),
	}))

	got, err := st.Query(context.Background(), records.EntityAccount, records.FieldName,
		[]string{"GenePoint", "Dickenson", "Missing"})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "GenePoint", got[0].GetString(records.FieldName))
	assert.Equal(t, "Dickenson", got[1].GetString(records.FieldName))
}

func TestMemoryStore_QueryReturnsCopies(t *testing.T) {
	st := NewMemoryStore(testIDs())
	require.NoError(t, st.Insert(context.Background(), []*records.Record{records.NewAccount("GenePoint")}))

	got, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got[0].Set(records.FieldName, "Mutated")

	again, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, again, 1, "stored record must be unaffected by caller mutation")
}

func TestMemoryStore_UpdatePersistsFields(t *testing.T) {
	st := NewMemoryStore(testIDs())
	rec := records.NewAccount("GenePoint")
	require.NoError(t, st.Insert(context.Background(), []*records.Record{rec}))

	rec.Set(records.FieldDescription, "updated")
	require.NoError(t, st.Update(context.Background(), []*records.Record{rec}))

	got, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].GetString(records.FieldDescription))
}

func TestMemoryStore_UpdateUnknownIdentity(t *testing.T) {
	st := NewMemoryStore(testIDs())

	tests := []struct {
		name string
		rec  *records.Record
	}{
		{name: "no identity", rec: records.NewAccount("GenePoint")},
		{name: "unknown identity", rec: func() *records.Record {
			r := records.NewAccount("GenePoint")
			r.ID = "nope"
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.Update(context.Background(), []*records.Record{tt.rec})
			require.Error(t, err)
			stdErr, ok := err.(*errors.StandardError)
			require.True(t, ok)
			assert.Equal(t, errors.ErrorCode("STORE_RECORD_NOT_FOUND"), stdErr.Code)
		})
	}
}

func TestMemoryStore_UpsertMixedBatch(t *testing.T) {
	st := NewMemoryStore(testIDs())
	existing := records.NewAccount("GenePoint")
	require.NoError(t, st.Insert(context.Background(), []*records.Record{existing}))

	existing.Set(records.FieldDescription, "refreshed")
	fresh := records.NewAccount("Pyramid")

	require.NoError(t, st.Upsert(context.Background(), []*records.Record{existing, fresh}, records.FieldName))

	assert.Equal(t, "mem-2", fresh.ID)
	assert.Equal(t, 2, st.Count(records.EntityAccount))

	got, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "refreshed", got[0].GetString(records.FieldDescription))
}

func TestMemoryStore_DeleteRemovesRecords(t *testing.T) {
	st := NewMemoryStore(testIDs())
	recs := []*records.Record{
		records.NewLead("Doe", "Acme"),
		records.NewLead("Smith", "Acme"),
	}
	require.NoError(t, st.Insert(context.Background(), recs))
	require.Equal(t, 2, st.Count(records.EntityLead))

	require.NoError(t, st.Delete(context.Background(), recs))
	assert.Zero(t, st.Count(records.EntityLead))
}

func TestMemoryStore_DeleteUnknownIdentity(t *testing.T) {
	st := NewMemoryStore(testIDs())
	rec := records.NewLead("Doe", "Acme")
	rec.ID = "ghost"

	err := st.Delete(context.Background(), []*records.Record{rec})

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("STORE_RECORD_NOT_FOUND"), stdErr.Code)
}

func TestMemoryStore_NoNaturalKeyUniqueness(t *testing.T) {
	st := NewMemoryStore(testIDs())

	require.NoError(t, st.Insert(context.Background(), []*records.Record{records.NewAccount("Doe")}))
	require.NoError(t, st.Insert(context.Background(), []*records.Record{records.NewAccount("Doe")}))

	got, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"Doe"})
	require.NoError(t, err)
	assert.Len(t, got, 2, "the store does not enforce key uniqueness")
}
