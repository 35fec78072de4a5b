package reconcile

import (
	"context"

	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
	"crm-sync/internal/store"
)

// LinkResult is the outcome of linking contacts to same-named accounts.
type LinkResult struct {
	// Contacts holds the persisted contact batch, AccountId set on each.
	Contacts []*records.Record
	// Accounts is the account-side reconciliation outcome.
	Accounts *Result
	// AccountIDs maps contact last name to the matched account identity.
	AccountIDs map[string]string
	// Skipped lists last names for which no persisted account was found.
	// Those contacts are excluded from the persisted batch entirely, not
	// just left unassociated. Suspect behavior inherited from the original
	// module; kept as documented and reported here so callers can see the
	// drop.
	Skipped []string
}

// LinkContacts ensures an Account exists for each contact's LastName, then
// sets each contact's AccountId to the matched account's store identity and
// upserts the contact batch. The account side is persisted first so the store
// has assigned identities before any contact references them.
func LinkContacts(ctx context.Context, st store.RecordStore, contacts []*records.Record, defaults Defaults) (*LinkResult, error) {
	res := &LinkResult{AccountIDs: map[string]string{}}
	if len(contacts) == 0 {
		return res, nil
	}

	keys := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if err := c.Validate(); err != nil {
			return nil, errors.NewValidationError(records.FieldLastName, err.Error())
		}
		keys = append(keys, c.GetString(records.FieldLastName))
	}

	existing, err := st.Query(ctx, records.EntityAccount, records.FieldName, keys)
	if err != nil {
		return nil, err
	}

	accounts, err := ReconcileByKey(records.EntityAccount, records.FieldName, keys, defaults, existing)
	if err != nil {
		return nil, err
	}
	res.Accounts = accounts

	if len(accounts.Records) > 0 {
		if err := st.Upsert(ctx, accounts.Records, records.FieldName); err != nil {
			return nil, err
		}
	}

	// Re-read the account side: identities are assigned by the store, never
	// invented here.
	persisted, err := st.Query(ctx, records.EntityAccount, records.FieldName, keys)
	if err != nil {
		return nil, err
	}
	for _, acc := range persisted {
		name := acc.GetString(records.FieldName)
		if _, ok := res.AccountIDs[name]; !ok && acc.ID != "" {
			res.AccountIDs[name] = acc.ID
		}
	}

	for _, c := range contacts {
		lastName := c.GetString(records.FieldLastName)
		id, ok := res.AccountIDs[lastName]
		if !ok {
			res.Skipped = append(res.Skipped, lastName)
			continue
		}
		c.Set(records.FieldAccountID, id)
		res.Contacts = append(res.Contacts, c)
	}

	if len(res.Contacts) > 0 {
		if err := st.Upsert(ctx, res.Contacts, records.FieldLastName); err != nil {
			return nil, err
		}
	}

	return res, nil
}
