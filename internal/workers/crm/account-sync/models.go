package accountsync

import (
	"crm-sync/internal/audit"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/notify"
	"crm-sync/internal/store"
)

type Input struct {
	AccountNames []string               `json:"accountNames"`
	OnCreate     map[string]interface{} `json:"onCreate,omitempty"`
	OnExisting   map[string]interface{} `json:"onExisting,omitempty"`
}

type Output struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	Created       int      `json:"created"`
	Matched       int      `json:"matched"`
	RecordIDs     []string `json:"recordIds,omitempty"`
	DuplicateKeys []string `json:"duplicateKeys,omitempty"`
}

type ServiceDependencies struct {
	Store    store.RecordStore
	Logger   logger.Logger
	Audit    *audit.Indexer
	Notifier *notify.Notifier
}
