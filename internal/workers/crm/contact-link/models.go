package contactlink

import (
	"crm-sync/internal/audit"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/notify"
	"crm-sync/internal/store"
)

type ContactInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Input struct {
	Contacts []ContactInput `json:"contacts"`
}

type Output struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Linked     int               `json:"linked"`
	Skipped    []string          `json:"skipped,omitempty"`
	AccountIDs map[string]string `json:"accountIds,omitempty"`
}

type ServiceDependencies struct {
	Store    store.RecordStore
	Logger   logger.Logger
	Audit    *audit.Indexer
	Notifier *notify.Notifier
}
