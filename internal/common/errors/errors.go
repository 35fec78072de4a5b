// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Validation errors are raised before any store call; store errors wrap
// rejections from the record store (uniqueness, required fields, permissions).
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeStoreQueryFailed  ErrorCode = "STORE_QUERY_FAILED"
	ErrCodeStoreInsertFailed ErrorCode = "STORE_INSERT_FAILED"
	ErrCodeStoreUpdateFailed ErrorCode = "STORE_UPDATE_FAILED"
	ErrCodeStoreUpsertFailed ErrorCode = "STORE_UPSERT_FAILED"
	ErrCodeStoreDeleteFailed ErrorCode = "STORE_DELETE_FAILED"

	ErrCodeStoreBatchRejected    ErrorCode = "STORE_BATCH_REJECTED"
	ErrCodeStoreRecordNotFound   ErrorCode = "STORE_RECORD_NOT_FOUND"
	ErrCodeStoreAuthFailed       ErrorCode = "STORE_AUTH_FAILED"
	ErrCodeStoreConnectionFailed ErrorCode = "STORE_CONNECTION_FAILED"
	ErrCodeStoreTimeout          ErrorCode = "STORE_TIMEOUT"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeAuditIndexFailed       ErrorCode = "AUDIT_INDEX_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error. It is
// always raised before any store call is attempted.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   fmt.Sprintf("field: %s, %s", field, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreQueryFailedError creates a retryable store query error.
func NewStoreQueryFailedError(entityType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreQueryFailed,
		Message:   "Record store query failed",
		Details:   fmt.Sprintf("entityType: %s, error: %s", entityType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreInsertFailedError creates a retryable store insert error.
func NewStoreInsertFailedError(entityType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreInsertFailed,
		Message:   "Record store insert failed",
		Details:   fmt.Sprintf("entityType: %s, error: %s", entityType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUpdateFailedError creates a retryable store update error.
func NewStoreUpdateFailedError(entityType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUpdateFailed,
		Message:   "Record store update failed",
		Details:   fmt.Sprintf("entityType: %s, error: %s", entityType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUpsertFailedError creates a retryable store upsert error.
func NewStoreUpsertFailedError(entityType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUpsertFailed,
		Message:   "Record store upsert failed",
		Details:   fmt.Sprintf("entityType: %s, error: %s", entityType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreDeleteFailedError creates a retryable store delete error.
func NewStoreDeleteFailedError(entityType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreDeleteFailed,
		Message:   "Record store delete failed",
		Details:   fmt.Sprintf("entityType: %s, error: %s", entityType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreBatchRejectedError creates a non-retryable batch rejection error.
// A single failed row rejects the whole batch and the caller is informed via
// this one error.
func NewStoreBatchRejectedError(entityType, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreBatchRejected,
		Message:   "Record store rejected the batch",
		Details:   fmt.Sprintf("entityType: %s, %s", entityType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreRecordNotFoundError creates a non-retryable unknown-identity error.
func NewStoreRecordNotFoundError(entityType, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreRecordNotFound,
		Message:   "Record not found in store",
		Details:   fmt.Sprintf("entityType: %s, id: %s", entityType, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreAuthFailedError creates a non-retryable store authentication error.
func NewStoreAuthFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreAuthFailed,
		Message:   "Record store authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreConnectionFailedError creates a retryable store connection error.
func NewStoreConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreConnectionFailed,
		Message:   "Record store connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreTimeoutError creates a retryable store timeout error.
func NewStoreTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreTimeout,
		Message:   "Record store operation timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Query cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditIndexFailedError creates a retryable audit indexing error.
func NewAuditIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditIndexFailed,
		Message:   "Sync report indexing failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      "AUTHENTICATION_ERROR",
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes (same as internal).
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:       "VALIDATION_FAILED",
	ErrCodeStoreQueryFailed:       "STORE_QUERY_FAILED",
	ErrCodeStoreInsertFailed:      "STORE_INSERT_FAILED",
	ErrCodeStoreUpdateFailed:      "STORE_UPDATE_FAILED",
	ErrCodeStoreUpsertFailed:      "STORE_UPSERT_FAILED",
	ErrCodeStoreDeleteFailed:      "STORE_DELETE_FAILED",
	ErrCodeStoreBatchRejected:     "STORE_BATCH_REJECTED",
	ErrCodeStoreRecordNotFound:    "STORE_RECORD_NOT_FOUND",
	ErrCodeStoreAuthFailed:        "STORE_AUTH_FAILED",
	ErrCodeStoreConnectionFailed:  "STORE_CONNECTION_FAILED",
	ErrCodeStoreTimeout:           "STORE_TIMEOUT",
	ErrCodeCacheUnavailable:       "CACHE_UNAVAILABLE",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodeAuditIndexFailed:       "AUDIT_INDEX_FAILED",
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreQueryFailed,
		ErrCodeStoreInsertFailed,
		ErrCodeStoreUpdateFailed,
		ErrCodeStoreUpsertFailed,
		ErrCodeStoreDeleteFailed,
		ErrCodeStoreConnectionFailed,
		ErrCodeCacheUnavailable,
		ErrCodeNotificationSendFailed,
		ErrCodeAuditIndexFailed:
		return 3 // Retryable technical errors

	case ErrCodeStoreTimeout:
		return 2 // Partial retry for timeouts

	default:
		return 0 // Validation and business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code) // Fallback
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsValidationError reports whether err is a validation StandardError.
func IsValidationError(err error) bool {
	stdErr, ok := err.(*StandardError)
	return ok && stdErr.Code == ErrCodeValidationFailed
}

// IsStoreError reports whether err is a store-originated StandardError.
func IsStoreError(err error) bool {
	stdErr, ok := err.(*StandardError)
	return ok && strings.HasPrefix(string(stdErr.Code), "STORE_")
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	default:
		return "OTHER"
	}
}
