package contactlink

import (
	"context"
	"fmt"
	"time"

	"crm-sync/internal/audit"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/common/metrics"
	"crm-sync/internal/reconcile"
	"crm-sync/internal/records"
)

// Service runs the contact-to-account linking flow on top of the
// reconciler's LinkContacts.
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

	contacts := make([]*records.Record, 0, len(input.Contacts))
	for _, c := range input.Contacts {
		contacts = append(contacts, records.NewContact(c.FirstName, c.LastName))
	}

	defaults := reconcile.Defaults{}
	if s.config.AccountIndustry != "" {
		defaults.OnCreate = reconcile.FieldPatch{records.FieldIndustry: s.config.AccountIndustry}
	}

	result, err := reconcile.LinkContacts(ctx, s.deps.Store, contacts, defaults)
	if err != nil {
		return nil, err
	}

	metrics.RecordsReconciled.WithLabelValues(string(records.EntityContact), "linked").Add(float64(len(result.Contacts)))
	metrics.RecordsReconciled.WithLabelValues(string(records.EntityContact), "skipped").Add(float64(len(result.Skipped)))

	s.deps.Logger.Info("contact linking completed", map[string]interface{}{
		"linked":           len(result.Contacts),
		"skipped":          len(result.Skipped),
		"accounts_created": result.Accounts.Created,
		"accounts_matched": result.Accounts.Matched,
	})

	s.report(ctx, audit.SyncReport{
		TaskType:      TaskType,
		EntityType:    string(records.EntityContact),
		Created:       result.Accounts.Created,
		Matched:       len(result.Contacts),
		Skipped:       result.Skipped,
		DuplicateKeys: result.Accounts.DuplicateKeys,
		DurationMS:    time.Since(startTime).Milliseconds(),
	})

	return &Output{
		Success:    true,
		Message:    fmt.Sprintf("linked %d contacts", len(result.Contacts)),
		Linked:     len(result.Contacts),
		Skipped:    result.Skipped,
		AccountIDs: result.AccountIDs,
	}, nil
}

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
	_, err := s.deps.Store.Query(ctx, records.EntityContact, records.FieldLastName, []string{})
	if err != nil {
		return fmt.Errorf("record store unreachable: %w", err)
	}
	return nil
}
