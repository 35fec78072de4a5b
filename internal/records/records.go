// Package records defines the CRM entity model shared by the reconciler,
// the record store implementations and the workers.
package records

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies a CRM object type in the record store.
type EntityType string

const (
	EntityAccount     EntityType = "Account"
	EntityOpportunity EntityType = "Opportunity"
	EntityContact     EntityType = "Contact"
	EntityLead        EntityType = "Lead"
	EntityCase        EntityType = "Case"
)

// Field names used by reconciliation. Passthrough fields are carried in the
// field map untouched.
const (
	FieldName        = "Name"
	FieldDescription = "Description"
	FieldIndustry    = "Industry"
	FieldStageName   = "StageName"
	FieldCloseDate   = "CloseDate"
	FieldAmount      = "Amount"
	FieldAccountID   = "AccountId"
	FieldFirstName   = "FirstName"
	FieldLastName    = "LastName"
	FieldCompany     = "Company"
	FieldSubject     = "Subject"
	FieldStatus      = "Status"
	FieldOrigin      = "Origin"
)

// Record is an opaque store record: an entity type, the store-assigned
// identity (empty until the store assigns one) and a field map.
type Record struct {
	Type   EntityType             `json:"type"`
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

// New creates a record of the given type with a copy of the supplied fields.
func New(entityType EntityType, fields map[string]interface{}) *Record {
	r := &Record{
		Type:   entityType,
		Fields: make(map[string]interface{}, len(fields)),
	}
	for k, v := range fields {
		r.Fields[k] = v
	}
	return r
}

// KeyField returns the natural-key field for an entity type. Lead and Case
// are ephemeral and carry no reconciliation key.
func KeyField(entityType EntityType) string {
	switch entityType {
	case EntityAccount, EntityOpportunity:
		return FieldName
	case EntityContact:
		return FieldLastName
	default:
		return ""
	}
}

// Key returns the record's natural-key value, or "" when unset.
func (r *Record) Key() string {
	field := KeyField(r.Type)
	if field == "" {
		return ""
	}
	return r.GetString(field)
}

// Get returns a field value and whether it is present.
func (r *Record) Get(field string) (interface{}, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// GetString returns a field as a string, or "" when absent or not a string.
func (r *Record) GetString(field string) string {
	v, ok := r.Get(field)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set assigns a field value, allocating the field map if needed.
func (r *Record) Set(field string, value interface{}) {
	if r.Fields == nil {
		r.Fields = make(map[string]interface{})
	}
	r.Fields[field] = value
}

// Apply assigns every field in patch onto the record.
func (r *Record) Apply(patch map[string]interface{}) {
	for k, v := range patch {
		r.Set(k, v)
	}
}

// Clone returns a deep-enough copy (the field map is copied, values shared).
func (r *Record) Clone() *Record {
	c := New(r.Type, r.Fields)
	c.ID = r.ID
	return c
}

// Validate checks that the record carries a non-blank natural key when its
// type has one.
func (r *Record) Validate() error {
	field := KeyField(r.Type)
	if field == "" {
		return nil
	}
	if strings.TrimSpace(r.GetString(field)) == "" {
		return fmt.Errorf("%s requires a non-empty %s", r.Type, field)
	}
	return nil
}

// NewAccount creates an Account record keyed by name.
func NewAccount(name string) *Record {
	return New(EntityAccount, map[string]interface{}{
		FieldName: name,
	})
}

// NewOpportunity creates an Opportunity record owned by an account. The
// lifetime of the opportunity is tied to the account's existence in the
// store, not to this process.
func NewOpportunity(name, accountID string) *Record {
	return New(EntityOpportunity, map[string]interface{}{
		FieldName:      name,
		FieldAccountID: accountID,
	})
}

// NewContact creates a Contact record keyed by last name.
func NewContact(firstName, lastName string) *Record {
	return New(EntityContact, map[string]interface{}{
		FieldFirstName: firstName,
		FieldLastName:  lastName,
	})
}

// NewLead creates an ephemeral Lead record.
func NewLead(lastName, company string) *Record {
	return New(EntityLead, map[string]interface{}{
		FieldLastName: lastName,
		FieldCompany:  company,
	})
}

// NewCase creates an ephemeral Case record.
func NewCase(subject, status, origin string) *Record {
	return New(EntityCase, map[string]interface{}{
		FieldSubject: subject,
		FieldStatus:  status,
		FieldOrigin:  origin,
	})
}

// CloseDateIn formats a close date n days from now the way the store expects.
func CloseDateIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}
