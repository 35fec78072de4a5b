package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-sync/internal/common/database"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
)

func newIndexerForTest(t *testing.T, handler http.HandlerFunc) (*Indexer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	client := &database.ElasticsearchClient{Client: es}
	return NewIndexer(client, "crm-sync-reports", logger.NewTestLogger(t)), server
}

func TestIndexer_IndexesReport(t *testing.T) {
	var captured SyncReport
	indexer, _ := newIndexerForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm-sync-reports/_doc", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	})

	err := indexer.Index(context.Background(), SyncReport{
		TaskType:      "crm.account.sync",
		EntityType:    "Account",
		Created:       2,
		Matched:       1,
		DuplicateKeys: []string{"GenePoint"},
		DurationMS:    17,
	})

	require.NoError(t, err)
	assert.Equal(t, "crm.account.sync", captured.TaskType)
	assert.Equal(t, 2, captured.Created)
	assert.Equal(t, []string{"GenePoint"}, captured.DuplicateKeys)
	assert.False(t, captured.Timestamp.IsZero(), "timestamp is stamped when unset")
	assert.WithinDuration(t, time.Now().UTC(), captured.Timestamp, time.Minute)
}

func TestIndexer_PreservesExplicitTimestamp(t *testing.T) {
	var captured SyncReport
	indexer, _ := newIndexerForTest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	})

	stamp := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	err := indexer.Index(context.Background(), SyncReport{
		TaskType:  "crm.contact.link",
		Timestamp: stamp,
	})

	require.NoError(t, err)
	assert.True(t, stamp.Equal(captured.Timestamp))
}

func TestIndexer_ErrorResponse(t *testing.T) {
	indexer, _ := newIndexerForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"index_failed"}`))
	})

	err := indexer.Index(context.Background(), SyncReport{TaskType: "crm.account.sync"})

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("AUDIT_INDEX_FAILED"), stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestIndexer_ConnectionFailure(t *testing.T) {
	indexer, server := newIndexerForTest(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	err := indexer.Index(context.Background(), SyncReport{TaskType: "crm.account.sync"})

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("AUDIT_INDEX_FAILED"), stdErr.Code)
}
