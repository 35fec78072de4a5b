package accountsync

import (
	"context"
	"fmt"
	"time"

	"crm-sync/internal/audit"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/common/metrics"
	"crm-sync/internal/reconcile"
	"crm-sync/internal/records"
)

// Service runs the account find-or-create flow: one query, the pure
// reconciliation, one batch upsert.
type Service struct {
	deps   ServiceDependencies
	config *Config
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Service{deps: deps, config: config}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	startTime := time.Now()

	if len(input.AccountNames) > s.config.MaxBatchSize {
		return nil, errors.NewValidationError("accountNames",
			fmt.Sprintf("batch of %d exceeds limit of %d", len(input.AccountNames), s.config.MaxBatchSize))
	}

	if len(input.AccountNames) == 0 {
		return &Output{Success: true, Message: "nothing to sync"}, nil
	}

	existing, err := s.deps.Store.Query(ctx, records.EntityAccount, records.FieldName, input.AccountNames)
	if err != nil {
		return nil, err
	}

	result, err := reconcile.ReconcileByKey(records.EntityAccount, records.FieldName, input.AccountNames,
		reconcile.Defaults{
			OnCreate:   input.OnCreate,
			OnExisting: patchOrNil(input.OnExisting),
		}, existing)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Store.Upsert(ctx, result.Records, records.FieldName); err != nil {
		return nil, err
	}

	recordIDs := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		if rec.ID != "" {
			recordIDs = append(recordIDs, rec.ID)
		}
	}

	metrics.RecordsReconciled.WithLabelValues(string(records.EntityAccount), "created").Add(float64(result.Created))
	metrics.RecordsReconciled.WithLabelValues(string(records.EntityAccount), "matched").Add(float64(result.Matched))

	s.deps.Logger.Info("account sync completed", map[string]interface{}{
		"created":    result.Created,
		"matched":    result.Matched,
		"duplicates": len(result.DuplicateKeys),
	})

	s.report(ctx, audit.SyncReport{
		TaskType:      TaskType,
		EntityType:    string(records.EntityAccount),
		Created:       result.Created,
		Matched:       result.Matched,
		DuplicateKeys: result.DuplicateKeys,
		RecordIDs:     recordIDs,
		DurationMS:    time.Since(startTime).Milliseconds(),
	})

	return &Output{
		Success:       true,
		Message:       fmt.Sprintf("synced %d accounts", len(result.Records)),
		Created:       result.Created,
		Matched:       result.Matched,
		RecordIDs:     recordIDs,
		DuplicateKeys: result.DuplicateKeys,
	}, nil
}

// report ships the audit document and the notification. Both are
// best-effort: a sync that already committed must not fail the job.
func (s *Service) report(ctx context.Context, report audit.SyncReport) {
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Index(ctx, report); err != nil {
			s.deps.Logger.Warn("failed to index sync report", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendSyncReport(ctx, report); err != nil {
			s.deps.Logger.Warn("failed to send sync report", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// TestConnection verifies the record store answers queries.
func (s *Service) TestConnection(ctx context.Context) error {
	_, err := s.deps.Store.Query(ctx, records.EntityAccount, records.FieldName, []string{})
	if err != nil {
		return fmt.Errorf("record store unreachable: %w", err)
	}
	return nil
}

// patchOrNil keeps the matched-records-untouched contract: an absent
// onExisting map means no patch at all, not an empty one.
func patchOrNil(m map[string]interface{}) reconcile.FieldPatch {
	if len(m) == 0 {
		return nil
	}
	return reconcile.FieldPatch(m)
}
