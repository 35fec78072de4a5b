package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-sync/internal/common/auth"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/records"
)

// RESTStore is a RecordStore over the hosted CRM's batch REST API. Every
// mutation sends one batch request per call; the server answers with a
// per-record result envelope and rejects the whole batch when any record
// fails validation.
type RESTStore struct {
	baseURL    string
	tokens     auth.TokenProvider
	httpClient *http.Client
}

type batchPayload struct {
	Data []*records.Record `json:"data"`
}

type batchResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

// NewRESTStore creates a store client for the given API base URL.
func NewRESTStore(baseURL string, tokens auth.TokenProvider) *RESTStore {
	return &RESTStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Query fetches all records of entityType whose field matches one of values.
func (s *RESTStore) Query(ctx context.Context, entityType records.EntityType, field string, values []string) ([]*records.Record, error) {
	params := url.Values{}
	params.Set("field", field)
	params.Set("values", strings.Join(values, ","))
	endpoint := fmt.Sprintf("%s/objects/%s/search?%s", s.baseURL, entityType, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewStoreQueryFailedError(string(entityType), err)
	}
	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewStoreConnectionFailedError(err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, entityType, errors.NewStoreQueryFailedError); err != nil {
		return nil, err
	}

	var result struct {
		Data []*records.Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewStoreQueryFailedError(string(entityType), fmt.Errorf("failed to decode response: %w", err))
	}
	for _, rec := range result.Data {
		rec.Type = entityType
	}
	return result.Data, nil
}

// Insert sends one create batch. The server owns identity: the returned IDs
// are assigned back onto the records in order.
func (s *RESTStore) Insert(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	entityType, err := batchEntityType(recs)
	if err != nil {
		return err
	}

	resp, err := s.sendBatch(ctx, http.MethodPost,
		fmt.Sprintf("%s/objects/%s", s.baseURL, entityType), recs, entityType, errors.NewStoreInsertFailedError)
	if err != nil {
		return err
	}

	if len(resp.Data) != len(recs) {
		return errors.NewStoreInsertFailedError(string(entityType),
			fmt.Errorf("expected %d results, got %d", len(recs), len(resp.Data)))
	}
	for i, row := range resp.Data {
		recs[i].ID = row.Details.ID
	}
	return nil
}

// Update sends one update batch; every record must carry an identity.
func (s *RESTStore) Update(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	entityType, err := batchEntityType(recs)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.ID == "" {
			return errors.NewStoreRecordNotFoundError(string(entityType), "<unset>")
		}
	}

	_, err = s.sendBatch(ctx, http.MethodPut,
		fmt.Sprintf("%s/objects/%s", s.baseURL, entityType), recs, entityType, errors.NewStoreUpdateFailedError)
	return err
}

// Upsert sends one upsert batch matched server-side on matchField.
func (s *RESTStore) Upsert(ctx context.Context, recs []*records.Record, matchField string) error {
	if len(recs) == 0 {
		return nil
	}
	entityType, err := batchEntityType(recs)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/objects/%s/upsert?match=%s", s.baseURL, entityType, url.QueryEscape(matchField))
	resp, err := s.sendBatch(ctx, http.MethodPost, endpoint, recs, entityType, errors.NewStoreUpsertFailedError)
	if err != nil {
		return err
	}

	if len(resp.Data) == len(recs) {
		for i, row := range resp.Data {
			if recs[i].ID == "" {
				recs[i].ID = row.Details.ID
			}
		}
	}
	return nil
}

// Delete removes records by identity, one batch request.
func (s *RESTStore) Delete(ctx context.Context, recs []*records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	entityType, err := batchEntityType(recs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return errors.NewStoreRecordNotFoundError(string(entityType), "<unset>")
		}
		ids = append(ids, rec.ID)
	}

	endpoint := fmt.Sprintf("%s/objects/%s?ids=%s", s.baseURL, entityType, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return errors.NewStoreDeleteFailedError(string(entityType), err)
	}
	if err := s.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.NewStoreConnectionFailedError(err)
	}
	defer resp.Body.Close()

	return s.checkStatus(resp, entityType, errors.NewStoreDeleteFailedError)
}

func (s *RESTStore) sendBatch(ctx context.Context, method, endpoint string, recs []*records.Record, entityType records.EntityType, wrap func(string, error) *errors.StandardError) (*batchResponse, error) {
	jsonData, err := json.Marshal(batchPayload{Data: recs})
	if err != nil {
		return nil, wrap(string(entityType), fmt.Errorf("failed to marshal batch: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, wrap(string(entityType), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewStoreConnectionFailedError(err)
	}
	defer resp.Body.Close()

	if err := s.checkStatus(resp, entityType, wrap); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrap(string(entityType), fmt.Errorf("failed to read response body: %w", err))
	}

	var batchResp batchResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, wrap(string(entityType), fmt.Errorf("failed to unmarshal response: %w", err))
	}

	// One failing row rejects the whole batch server-side; report the first.
	for i, row := range batchResp.Data {
		if row.Status != "success" {
			return nil, errors.NewStoreBatchRejectedError(string(entityType),
				fmt.Sprintf("record %d: %s (%s)", i, row.Message, row.Code))
		}
	}
	return &batchResp, nil
}

func (s *RESTStore) authorize(ctx context.Context, req *http.Request) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return errors.NewStoreAuthFailedError(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (s *RESTStore) checkStatus(resp *http.Response, entityType records.EntityType, wrap func(string, error) *errors.StandardError) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		return errors.NewStoreAuthFailedError(fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return errors.NewStoreTimeoutError(fmt.Sprintf("%s request", entityType))
	default:
		body, _ := io.ReadAll(resp.Body)
		return wrap(string(entityType), fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
}

// batchEntityType enforces the single-entity-type batch contract.
func batchEntityType(recs []*records.Record) (records.EntityType, error) {
	entityType := recs[0].Type
	for _, rec := range recs[1:] {
		if rec.Type != entityType {
			return "", errors.NewStoreBatchRejectedError(string(entityType),
				fmt.Sprintf("mixed entity types in batch: %s and %s", entityType, rec.Type))
		}
	}
	return entityType, nil
}
