package crm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/reconcile"
	"crm-sync/internal/records"
	"crm-sync/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	n := 0
	st := store.NewMemoryStore(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
	return NewService(st, logger.NewTestLogger(t)), st
}

func TestService_CreateAccount(t *testing.T) {
	svc, st := newTestService(t)

	acc, err := svc.CreateAccount(context.Background(), "GenePoint")

	require.NoError(t, err)
	assert.Equal(t, "id-1", acc.ID)
	assert.Equal(t, "GenePoint", acc.GetString(records.FieldName))
	assert.Equal(t, 1, st.Count(records.EntityAccount))
}

func TestService_CreateAccount_BlankName(t *testing.T) {
	svc, st := newTestService(t)

	_, err := svc.CreateAccount(context.Background(), "  ")

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("VALIDATION_FAILED"), stdErr.Code)
	assert.Zero(t, st.Count(records.EntityAccount))
}

func TestService_CreateAccountWithDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	acc, err := svc.CreateAccountWithDefaults(context.Background(), "GenePoint", "Biotech company", "Biotechnology")

	require.NoError(t, err)
	assert.Equal(t, "Biotech company", acc.GetString(records.FieldDescription))
	assert.Equal(t, "Biotechnology", acc.GetString(records.FieldIndustry))
}

func TestService_CreateContactForAccount(t *testing.T) {
	svc, _ := newTestService(t)
	acc, err := svc.CreateAccount(context.Background(), "GenePoint")
	require.NoError(t, err)

	contact, err := svc.CreateContactForAccount(context.Background(), "John", "Doe", acc.ID)

	require.NoError(t, err)
	assert.Equal(t, acc.ID, contact.GetString(records.FieldAccountID))
	assert.Equal(t, "Doe", contact.GetString(records.FieldLastName))
}

func TestService_UpdateContactLastName(t *testing.T) {
	svc, st := newTestService(t)
	_, err := svc.CreateContactForAccount(context.Background(), "John", "Doe", "acc-1")
	require.NoError(t, err)
	_, err = svc.CreateContactForAccount(context.Background(), "Jane", "Doe", "acc-1")
	require.NoError(t, err)

	updated, err := svc.UpdateContactLastName(context.Background(), "Doe", "Smith")

	require.NoError(t, err)
	assert.Len(t, updated, 2)

	renamed, err := st.Query(context.Background(), records.EntityContact, records.FieldLastName, []string{"Smith"})
	require.NoError(t, err)
	assert.Len(t, renamed, 2)
}

func TestService_UpdateContactLastName_EmptyNewName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateContactLastName(context.Background(), "Doe", "")

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("VALIDATION_FAILED"), stdErr.Code)
}

func TestService_UpdateContactLastName_NoMatches(t *testing.T) {
	svc, _ := newTestService(t)

	updated, err := svc.UpdateContactLastName(context.Background(), "Nobody", "Smith")

	require.NoError(t, err)
	assert.Nil(t, updated, "no matches is not an error")
}

func TestService_UpdateOpportunityStage(t *testing.T) {
	svc, st := newTestService(t)
	opp := records.NewOpportunity("GenePoint SLA", "acc-1")
	opp.Set(records.FieldStageName, "Prospecting")
	require.NoError(t, st.Insert(context.Background(), []*records.Record{opp}))

	updated, err := svc.UpdateOpportunityStage(context.Background(), "GenePoint SLA", "Qualification")

	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Qualification", updated[0].GetString(records.FieldStageName))
}

func TestService_UpdateAccountFields(t *testing.T) {
	svc, st := newTestService(t)
	_, err := svc.CreateAccount(context.Background(), "GenePoint")
	require.NoError(t, err)

	updated, err := svc.UpdateAccountFields(context.Background(), "GenePoint", reconcile.FieldPatch{
		records.FieldDescription: "patched",
		records.FieldIndustry:    "Biotech",
	})

	require.NoError(t, err)
	require.Len(t, updated, 1)

	stored, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "patched", stored[0].GetString(records.FieldDescription))
	assert.Equal(t, "Biotech", stored[0].GetString(records.FieldIndustry))
}

func TestService_UpsertAccount_CreatesThenMatches(t *testing.T) {
	svc, st := newTestService(t)

	first, err := svc.UpsertAccount(context.Background(), "GenePoint", "first pass")
	require.NoError(t, err)
	assert.Equal(t, "id-1", first.ID)
	assert.Equal(t, "first pass", first.GetString(records.FieldDescription))

	second, err := svc.UpsertAccount(context.Background(), "GenePoint", "second pass")
	require.NoError(t, err)
	assert.Equal(t, "id-1", second.ID, "second upsert must match, not create")
	assert.Equal(t, "second pass", second.GetString(records.FieldDescription))
	assert.Equal(t, 1, st.Count(records.EntityAccount))
}

func TestService_UpsertOpportunities(t *testing.T) {
	svc, st := newTestService(t)
	existing := records.NewOpportunity("GenePoint SLA", "acc-1")
	existing.Set(records.FieldStageName, "Qualification-A")
	require.NoError(t, st.Insert(context.Background(), []*records.Record{existing}))

	result, err := svc.UpsertOpportunities(context.Background(), "acc-1",
		[]string{"GenePoint SLA", "GenePoint Generators"}, 30000)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 2, st.Count(records.EntityOpportunity))

	// Matched record keeps its stage; created one gets the defaults.
	assert.Equal(t, "Qualification-A", result.Records[0].GetString(records.FieldStageName))
	assert.Equal(t, "Prospecting", result.Records[1].GetString(records.FieldStageName))
	assert.Equal(t, "acc-1", result.Records[1].GetString(records.FieldAccountID))
	amount, _ := result.Records[1].Get(records.FieldAmount)
	assert.Equal(t, float64(30000), amount)
	assert.NotEmpty(t, result.Records[1].GetString(records.FieldCloseDate))
}

func TestService_UpsertOpportunities_EmptyNames(t *testing.T) {
	svc, st := newTestService(t)

	result, err := svc.UpsertOpportunities(context.Background(), "acc-1", nil, 1000)

	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Zero(t, st.Count(records.EntityOpportunity), "empty desired set writes nothing")
}

func TestService_LinkContactsToAccounts(t *testing.T) {
	svc, st := newTestService(t)
	contacts := []*records.Record{
		records.NewContact("John", "Doe"),
		records.NewContact("Jane", "Smith"),
	}

	result, err := svc.LinkContactsToAccounts(context.Background(), contacts, reconcile.Defaults{})

	require.NoError(t, err)
	assert.Len(t, result.Contacts, 2)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 2, st.Count(records.EntityAccount))
	assert.Equal(t, 2, st.Count(records.EntityContact))
}

func TestService_InsertAndDeleteLeads(t *testing.T) {
	svc, st := newTestService(t)

	n, err := svc.InsertAndDeleteLeads(context.Background(), []string{"Doe", "Smith", "Jones"}, "Acme")

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, st.Count(records.EntityLead), "leads are an ephemeral round trip")
}

func TestService_InsertAndDeleteCases(t *testing.T) {
	svc, st := newTestService(t)

	n, err := svc.InsertAndDeleteCases(context.Background(),
		[]string{"Printer is on fire", "Cannot log in"}, "New", "Phone")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, st.Count(records.EntityCase))
}

func TestService_InsertAndDeleteLeads_Empty(t *testing.T) {
	svc, _ := newTestService(t)

	n, err := svc.InsertAndDeleteLeads(context.Background(), nil, "Acme")

	require.NoError(t, err)
	assert.Zero(t, n)
}
