package accountsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"crm-sync/internal/common/config"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/records"
	"crm-sync/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_AccountSync",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		MaxBatchSize:  200,
	}
}

func newTestDeps(t *testing.T) (ServiceDependencies, *store.MemoryStore) {
	t.Helper()
	n := 0
	st := store.NewMemoryStore(func() string {
		n++
		return fmt.Sprintf("acc-%d", n)
	})
	return ServiceDependencies{
		Store:  st,
		Logger: logger.NewTestLogger(t),
	}, st
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{
				CustomConfig: createValidConfig(),
				Logger:       logger.NewStructured("info", "json"),
			},
			wantErr: false,
		},
		{
			name: "invalid timeout",
			opts: HandlerOptions{
				CustomConfig: &Config{
					Enabled:       true,
					MaxJobsActive: 5,
					Timeout:       -1 * time.Second,
					MaxBatchSize:  200,
				},
			},
			wantErr: true,
			errMsg:  "timeout must be positive",
		},
		{
			name: "invalid max jobs active",
			opts: HandlerOptions{
				CustomConfig: &Config{
					Enabled:       true,
					MaxJobsActive: 0,
					Timeout:       30 * time.Second,
					MaxBatchSize:  200,
				},
			},
			wantErr: true,
			errMsg:  "max_jobs_active must be positive",
		},
		{
			name: "invalid max batch size",
			opts: HandlerOptions{
				CustomConfig: &Config{
					Enabled:       true,
					MaxJobsActive: 5,
					Timeout:       30 * time.Second,
					MaxBatchSize:  0,
				},
			},
			wantErr: true,
			errMsg:  "max_batch_size must be positive",
		},
		{
			name: "default logger created when not provided",
			opts: HandlerOptions{
				CustomConfig: createValidConfig(),
				Logger:       nil,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, err := NewHandler(tt.opts)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, handler)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, handler)
				assert.NotNil(t, handler.config)
				assert.NotNil(t, handler.logger)
				assert.NotNil(t, handler.service)
			}
		})
	}
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := &Handler{
		config: createValidConfig(),
		logger: logger.NewStructured("info", "json"),
	}

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		errCode   string
		validate  func(*testing.T, *Input)
	}{
		{
			name: "valid input with all fields",
			variables: map[string]interface{}{
				"accountNames": []interface{}{"GenePoint", "Pyramid"},
				"onCreate": map[string]interface{}{
					"Description": "synced",
					"Industry":    "Biotech",
				},
				"onExisting": map[string]interface{}{
					"Description": "refreshed",
				},
			},
			wantErr: false,
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, []string{"GenePoint", "Pyramid"}, input.AccountNames)
				assert.Equal(t, "synced", input.OnCreate["Description"])
				assert.Equal(t, "refreshed", input.OnExisting["Description"])
			},
		},
		{
			name: "valid input names only",
			variables: map[string]interface{}{
				"accountNames": []interface{}{"GenePoint"},
			},
			wantErr: false,
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, []string{"GenePoint"}, input.AccountNames)
				assert.Nil(t, input.OnCreate)
				assert.Nil(t, input.OnExisting)
			},
		},
		{
			name: "empty account list is valid",
			variables: map[string]interface{}{
				"accountNames": []interface{}{},
			},
			wantErr: false,
			validate: func(t *testing.T, input *Input) {
				assert.Empty(t, input.AccountNames)
			},
		},
		{
			name:      "missing accountNames",
			variables: map[string]interface{}{},
			wantErr:   true,
			errCode:   "VALIDATION_FAILED",
		},
		{
			name: "accountNames wrong type",
			variables: map[string]interface{}{
				"accountNames": "GenePoint",
			},
			wantErr: true,
			errCode: "VALIDATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := createMockJob(12345, tt.variables)

			input, err := handler.parseInput(job)

			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := err.(*errors.StandardError)
				require.True(t, ok, "error should be StandardError")
				assert.Equal(t, errors.ErrorCode(tt.errCode), stdErr.Code)
			} else {
				require.NoError(t, err)
				require.NotNil(t, input)
				if tt.validate != nil {
					tt.validate(t, input)
				}
			}
		})
	}
}

// ==========================
// Service Execution Tests
// ==========================

func TestService_Execute_CreatesMissingAccounts(t *testing.T) {
	deps, st := newTestDeps(t)
	service := NewService(deps, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"GenePoint", "Pyramid"},
		OnCreate:     map[string]interface{}{"Industry": "Biotech"},
	})

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, 2, output.Created)
	assert.Zero(t, output.Matched)
	assert.Len(t, output.RecordIDs, 2)
	assert.Equal(t, 2, st.Count(records.EntityAccount))

	stored, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Biotech", stored[0].GetString(records.FieldIndustry))
}

func TestService_Execute_MatchesExisting(t *testing.T) {
	deps, st := newTestDeps(t)
	require.NoError(t, st.Insert(context.Background(), []*records.Record{records.NewAccount("GenePoint")}))
	service := NewService(deps, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"GenePoint", "Pyramid"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, output.Created)
	assert.Equal(t, 1, output.Matched)
	assert.Equal(t, 2, st.Count(records.EntityAccount), "matched account must not be duplicated")
}

func TestService_Execute_OnExistingPatch(t *testing.T) {
	deps, st := newTestDeps(t)
	existing := records.NewAccount("GenePoint")
	require.NoError(t, st.Insert(context.Background(), []*records.Record{existing}))
	service := NewService(deps, createValidConfig())

	_, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"GenePoint"},
		OnExisting:   map[string]interface{}{"Description": "refreshed"},
	})
	require.NoError(t, err)

	stored, err := st.Query(context.Background(), records.EntityAccount, records.FieldName, []string{"GenePoint"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "refreshed", stored[0].GetString(records.FieldDescription))
}

func TestService_Execute_EmptyBatch(t *testing.T) {
	deps, st := newTestDeps(t)
	service := NewService(deps, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{AccountNames: nil})

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, "nothing to sync", output.Message)
	assert.Zero(t, st.Count(records.EntityAccount), "empty batch writes nothing")
}

func TestService_Execute_BatchLimit(t *testing.T) {
	deps, _ := newTestDeps(t)
	cfg := createValidConfig()
	cfg.MaxBatchSize = 2
	service := NewService(deps, cfg)

	_, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"A", "B", "C"},
	})

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("VALIDATION_FAILED"), stdErr.Code)
}

func TestService_Execute_DuplicateNamesCollapse(t *testing.T) {
	deps, st := newTestDeps(t)
	service := NewService(deps, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"Doe", "Doe"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, output.Created)
	assert.Equal(t, 1, st.Count(records.EntityAccount))
}

func TestService_Execute_DuplicateSnapshotSurfaced(t *testing.T) {
	deps, st := newTestDeps(t)
	require.NoError(t, st.Insert(context.Background(), []*records.Record{
		records.NewAccount("Doe"),
		records.NewAccount("Doe"),
	}))
	service := NewService(deps, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{
		AccountNames: []string{"Doe"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Doe"}, output.DuplicateKeys)
	assert.Equal(t, 2, st.Count(records.EntityAccount), "ambiguity is surfaced, not resolved")
}

func TestService_Execute_Idempotent(t *testing.T) {
	deps, st := newTestDeps(t)
	service := NewService(deps, createValidConfig())
	input := &Input{AccountNames: []string{"GenePoint", "Pyramid"}}

	first, err := service.Execute(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := service.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Matched)
	assert.Equal(t, 2, st.Count(records.EntityAccount))
	assert.ElementsMatch(t, first.RecordIDs, second.RecordIDs)
}

func TestService_TestConnection(t *testing.T) {
	deps, _ := newTestDeps(t)
	service := NewService(deps, createValidConfig())

	assert.NoError(t, service.TestConnection(context.Background()))
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_ExtractErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name: "standard error - store failure",
			err: &errors.StandardError{
				Code:    "STORE_UPSERT_FAILED",
				Message: "upsert failed",
			},
			expected: "STORE_UPSERT_FAILED",
		},
		{
			name: "standard error - validation failed",
			err: &errors.StandardError{
				Code:    "VALIDATION_FAILED",
				Message: "Invalid input",
			},
			expected: "VALIDATION_FAILED",
		},
		{
			name:     "generic error",
			err:      fmt.Errorf("generic error"),
			expected: "UNKNOWN_ERROR",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "UNKNOWN_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := extractErrorCode(tt.err)
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestHandler_ConvertToStandardError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		validate func(*testing.T, *errors.StandardError)
	}{
		{
			name: "already standard error",
			err: &errors.StandardError{
				Code:      "STORE_TIMEOUT",
				Message:   "timed out",
				Retryable: true,
				Timestamp: time.Now(),
			},
			validate: func(t *testing.T, stdErr *errors.StandardError) {
				assert.Equal(t, errors.ErrorCode("STORE_TIMEOUT"), stdErr.Code)
				assert.True(t, stdErr.Retryable)
			},
		},
		{
			name: "generic error converted",
			err:  fmt.Errorf("test error"),
			validate: func(t *testing.T, stdErr *errors.StandardError) {
				assert.Equal(t, errors.ErrorCode("ACCOUNT_SYNC_ERROR"), stdErr.Code)
				assert.Equal(t, "Failed to sync accounts", stdErr.Message)
				assert.True(t, stdErr.Retryable)
				assert.Contains(t, stdErr.Details, "test error")
				assert.False(t, stdErr.Timestamp.IsZero())
			},
		},
		{
			name: "non-retryable error preserved",
			err: &errors.StandardError{
				Code:      "VALIDATION_FAILED",
				Message:   "Invalid data",
				Retryable: false,
				Timestamp: time.Now(),
			},
			validate: func(t *testing.T, stdErr *errors.StandardError) {
				assert.False(t, stdErr.Retryable)
				assert.Equal(t, "VALIDATION_FAILED", string(stdErr.Code))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := convertToStandardError(tt.err)
			require.NotNil(t, stdErr)
			tt.validate(t, stdErr)
		})
	}
}

// ==========================
// Config Tests
// ==========================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  createValidConfig(),
			wantErr: false,
		},
		{
			name: "zero timeout",
			config: &Config{
				MaxJobsActive: 5,
				MaxBatchSize:  200,
			},
			wantErr: true,
			errMsg:  "timeout must be positive",
		},
		{
			name: "zero max jobs active",
			config: &Config{
				Timeout:      30 * time.Second,
				MaxBatchSize: 200,
			},
			wantErr: true,
			errMsg:  "max_jobs_active must be positive",
		},
		{
			name: "zero max batch size",
			config: &Config{
				Timeout:       30 * time.Second,
				MaxJobsActive: 5,
			},
			wantErr: true,
			errMsg:  "max_batch_size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.True(t, config.Enabled)
	assert.Equal(t, 5, config.MaxJobsActive)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 200, config.MaxBatchSize)
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	tests := []struct {
		name         string
		appConfig    *config.Config
		customConfig *Config
		validate     func(*testing.T, *Config)
	}{
		{
			name:         "custom config takes precedence",
			appConfig:    &config.Config{},
			customConfig: createValidConfig(),
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 200, cfg.MaxBatchSize)
				assert.True(t, cfg.Enabled)
			},
		},
		{
			name: "loads from app config",
			appConfig: &config.Config{
				Workers: map[string]config.WorkerConfig{
					"account-sync": {
						Enabled:       true,
						MaxJobsActive: 10,
						Timeout:       45000,
					},
				},
			},
			customConfig: nil,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.MaxJobsActive)
				assert.Equal(t, 45*time.Second, cfg.Timeout)
				assert.True(t, cfg.Enabled)
			},
		},
		{
			name:         "uses defaults when no configs provided",
			appConfig:    nil,
			customConfig: nil,
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Enabled)
				assert.Equal(t, 5, cfg.MaxJobsActive)
				assert.Equal(t, 30*time.Second, cfg.Timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createConfigFromAppConfig(tt.appConfig, tt.customConfig)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

// ==========================
// Handler Methods Tests
// ==========================

func TestHandler_GetTaskType(t *testing.T) {
	handler := &Handler{}
	assert.Equal(t, "crm.account.sync", handler.GetTaskType())
	assert.Equal(t, TaskType, handler.GetTaskType())
}

func TestHandler_IsEnabled(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		enabled bool
	}{
		{name: "enabled", config: &Config{Enabled: true}, enabled: true},
		{name: "disabled", config: &Config{Enabled: false}, enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &Handler{config: tt.config}
			assert.Equal(t, tt.enabled, handler.IsEnabled())
		})
	}
}

// ==========================
// Schema Tests
// ==========================

func TestGetInputSchema(t *testing.T) {
	schema := GetInputSchema()

	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Required, "accountNames")
	assert.Len(t, schema.Required, 1)

	assert.Contains(t, schema.Properties, "accountNames")
	assert.Contains(t, schema.Properties, "onCreate")
	assert.Contains(t, schema.Properties, "onExisting")

	assert.Equal(t, "array", schema.Properties["accountNames"].Type)
	assert.Equal(t, "object", schema.Properties["onCreate"].Type)
	assert.Equal(t, "object", schema.Properties["onExisting"].Type)

	require.NotNil(t, schema.Properties["accountNames"].Items)
	assert.Equal(t, "string", schema.Properties["accountNames"].Items.Type)

	assert.False(t, schema.AdditionalProperties)
}

func TestGetOutputSchema(t *testing.T) {
	schema := GetOutputSchema()

	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "success")
	assert.Contains(t, schema.Properties, "message")
	assert.Contains(t, schema.Properties, "created")
	assert.Contains(t, schema.Properties, "matched")
	assert.Contains(t, schema.Properties, "recordIds")
	assert.Contains(t, schema.Properties, "duplicateKeys")

	assert.Equal(t, "boolean", schema.Properties["success"].Type)
	assert.Equal(t, "integer", schema.Properties["created"].Type)

	assert.False(t, schema.AdditionalProperties)
}
