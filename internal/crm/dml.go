// Package crm exposes the record-manipulation operations of the sync
// service: create, read, update, upsert and delete over a RecordStore,
// plus the find-or-create flows built on the reconciler.
package crm

import (
	"context"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/records"
	"crm-sync/internal/reconcile"
	"crm-sync/internal/store"
)

// Service runs DML operations against a record store. Each operation is
// stateless and issues at most one batch write.
type Service struct {
	store  store.RecordStore
	logger logger.Logger
}

// NewService creates a DML service over the given store.
func NewService(st store.RecordStore, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{store: st, logger: log}
}

// CreateAccount inserts a single account with the given name.
func (s *Service) CreateAccount(ctx context.Context, name string) (*records.Record, error) {
	acc := records.NewAccount(name)
	if err := acc.Validate(); err != nil {
		return nil, errors.NewValidationError(records.FieldName, err.Error())
	}
	if err := s.store.Insert(ctx, []*records.Record{acc}); err != nil {
		return nil, err
	}
	s.logger.Info("account created", map[string]interface{}{"id": acc.ID, "name": name})
	return acc, nil
}

// CreateAccountWithDefaults inserts an account populated with description
// and industry.
func (s *Service) CreateAccountWithDefaults(ctx context.Context, name, description, industry string) (*records.Record, error) {
	acc := records.NewAccount(name)
	acc.Set(records.FieldDescription, description)
	acc.Set(records.FieldIndustry, industry)
	if err := acc.Validate(); err != nil {
		return nil, errors.NewValidationError(records.FieldName, err.Error())
	}
	if err := s.store.Insert(ctx, []*records.Record{acc}); err != nil {
		return nil, err
	}
	return acc, nil
}

// CreateContactForAccount inserts a contact already associated to an
// account identity.
func (s *Service) CreateContactForAccount(ctx context.Context, firstName, lastName, accountID string) (*records.Record, error) {
	contact := records.NewContact(firstName, lastName)
	contact.Set(records.FieldAccountID, accountID)
	if err := contact.Validate(); err != nil {
		return nil, errors.NewValidationError(records.FieldLastName, err.Error())
	}
	if err := s.store.Insert(ctx, []*records.Record{contact}); err != nil {
		return nil, err
	}
	return contact, nil
}

// UpdateContactLastName renames every contact currently under lastName.
// Returns the updated records.
func (s *Service) UpdateContactLastName(ctx context.Context, lastName, newLastName string) ([]*records.Record, error) {
	if newLastName == "" {
		return nil, errors.NewValidationError(records.FieldLastName, "new last name must not be empty")
	}
	contacts, err := s.store.Query(ctx, records.EntityContact, records.FieldLastName, []string{lastName})
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	for _, c := range contacts {
		c.Set(records.FieldLastName, newLastName)
	}
	if err := s.store.Update(ctx, contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// UpdateOpportunityStage moves every opportunity with the given name to
// stage. Returns the updated records.
func (s *Service) UpdateOpportunityStage(ctx context.Context, name, stage string) ([]*records.Record, error) {
	if stage == "" {
		return nil, errors.NewValidationError(records.FieldStageName, "stage must not be empty")
	}
	opps, err := s.store.Query(ctx, records.EntityOpportunity, records.FieldName, []string{name})
	if err != nil {
		return nil, err
	}
	if len(opps) == 0 {
		return nil, nil
	}
	for _, o := range opps {
		o.Set(records.FieldStageName, stage)
	}
	if err := s.store.Update(ctx, opps); err != nil {
		return nil, err
	}
	return opps, nil
}

// UpdateAccountFields applies a field patch to every account with the
// given name. Returns the updated records.
func (s *Service) UpdateAccountFields(ctx context.Context, name string, patch reconcile.FieldPatch) ([]*records.Record, error) {
	accounts, err := s.store.Query(ctx, records.EntityAccount, records.FieldName, []string{name})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	for _, acc := range accounts {
		acc.Apply(patch)
	}
	if err := s.store.Update(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpsertAccount finds or creates one account by name, setting description
// on it either way, with a single upsert.
func (s *Service) UpsertAccount(ctx context.Context, name, description string) (*records.Record, error) {
	existing, err := s.store.Query(ctx, records.EntityAccount, records.FieldName, []string{name})
	if err != nil {
		return nil, err
	}

	patch := reconcile.FieldPatch{records.FieldDescription: description}
	result, err := reconcile.ReconcileByKey(records.EntityAccount, records.FieldName, []string{name},
		reconcile.Defaults{OnCreate: patch, OnExisting: patch}, existing)
	if err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, result.Records, records.FieldName); err != nil {
		return nil, err
	}
	return result.Records[0], nil
}

// UpsertOpportunities reconciles opportunity names under one parent
// account. Missing opportunities are created in the Prospecting stage with
// a close date 90 days out and the given amount; the whole record set is
// persisted with one upsert.
func (s *Service) UpsertOpportunities(ctx context.Context, accountID string, names []string, amount float64) (*reconcile.Result, error) {
	existing, err := s.store.Query(ctx, records.EntityOpportunity, records.FieldName, names)
	if err != nil {
		return nil, err
	}

	result, err := reconcile.ReconcileByKey(records.EntityOpportunity, records.FieldName, names,
		reconcile.Defaults{OnCreate: reconcile.FieldPatch{
			records.FieldStageName: "Prospecting",
			records.FieldCloseDate: records.CloseDateIn(90),
			records.FieldAmount:    amount,
			records.FieldAccountID: accountID,
		}}, existing)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return result, nil
	}

	if err := s.store.Upsert(ctx, result.Records, records.FieldName); err != nil {
		return nil, err
	}
	s.logger.Info("opportunities reconciled", map[string]interface{}{
		"account_id": accountID,
		"created":    result.Created,
		"matched":    result.Matched,
	})
	return result, nil
}

// LinkContactsToAccounts ensures an account exists per contact last name
// and associates each contact to it.
func (s *Service) LinkContactsToAccounts(ctx context.Context, contacts []*records.Record, defaults reconcile.Defaults) (*reconcile.LinkResult, error) {
	result, err := reconcile.LinkContacts(ctx, s.store, contacts, defaults)
	if err != nil {
		return nil, err
	}
	if len(result.Skipped) > 0 {
		s.logger.Warn("contacts skipped during linking", map[string]interface{}{
			"skipped": result.Skipped,
		})
	}
	return result, nil
}

// InsertAndDeleteLeads inserts a lead batch and deletes it again, an
// ephemeral round trip. Returns how many records were cycled.
func (s *Service) InsertAndDeleteLeads(ctx context.Context, lastNames []string, company string) (int, error) {
	leads := make([]*records.Record, 0, len(lastNames))
	for _, lastName := range lastNames {
		leads = append(leads, records.NewLead(lastName, company))
	}
	if len(leads) == 0 {
		return 0, nil
	}
	if err := s.store.Insert(ctx, leads); err != nil {
		return 0, err
	}
	if err := s.store.Delete(ctx, leads); err != nil {
		return 0, err
	}
	return len(leads), nil
}

// InsertAndDeleteCases inserts a case batch and deletes it again.
func (s *Service) InsertAndDeleteCases(ctx context.Context, subjects []string, status, origin string) (int, error) {
	cases := make([]*records.Record, 0, len(subjects))
	for _, subject := range subjects {
		cases = append(cases, records.NewCase(subject, status, origin))
	}
	if len(cases) == 0 {
		return 0, nil
	}
	if err := s.store.Insert(ctx, cases); err != nil {
		return 0, err
	}
	if err := s.store.Delete(ctx, cases); err != nil {
		return 0, err
	}
	return len(cases), nil
}
