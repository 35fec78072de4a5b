// Package audit records the outcome of each sync run in Elasticsearch so
// operators can trace what a worker created, matched and skipped.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"crm-sync/internal/common/database"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
)

// SyncReport is one reconciliation outcome, indexed per job.
type SyncReport struct {
	TaskType      string    `json:"task_type"`
	EntityType    string    `json:"entity_type"`
	JobKey        int64     `json:"job_key,omitempty"`
	Created       int       `json:"created"`
	Matched       int       `json:"matched"`
	Skipped       []string  `json:"skipped,omitempty"`
	DuplicateKeys []string  `json:"duplicate_keys,omitempty"`
	RecordIDs     []string  `json:"record_ids,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// Indexer writes sync reports to one Elasticsearch index.
type Indexer struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
}

// NewIndexer creates an audit indexer over the given client.
func NewIndexer(es *database.ElasticsearchClient, index string, log logger.Logger) *Indexer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Indexer{es: es, index: index, logger: log}
}

// Index writes one report. The timestamp is stamped here when unset.
func (i *Indexer) Index(ctx context.Context, report SyncReport) error {
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.NewAuditIndexFailedError(err)
	}

	req := esapi.IndexRequest{
		Index: i.index,
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, i.es.Client)
	if err != nil {
		return errors.NewAuditIndexFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewAuditIndexFailedError(
			fmt.Errorf("index request returned %s", res.Status()))
	}

	i.logger.Debug("sync report indexed", map[string]interface{}{
		"index":       i.index,
		"task_type":   report.TaskType,
		"entity_type": report.EntityType,
	})
	return nil
}
