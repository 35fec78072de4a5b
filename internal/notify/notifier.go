// Package notify sends sync-report notifications over SES email and SNS SMS.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"crm-sync/internal/audit"
	"crm-sync/internal/common/config"
	"crm-sync/internal/common/errors"
	"crm-sync/internal/common/logger"
)

// SESService is the SES surface the notifier needs, mockable in tests.
type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SNSService is the SNS surface the notifier needs, mockable in tests.
type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Notifier delivers sync reports to operators. Email goes out for every
// report when enabled; SMS only when the report carries skipped contacts,
// which is the condition worth waking someone for.
type Notifier struct {
	ses    SESService
	sns    SNSService
	cfg    config.NotificationConfig
	logger logger.Logger
}

// NewNotifier creates a notifier. Either client may be nil when the
// corresponding channel is disabled.
func NewNotifier(sesClient SESService, snsClient SNSService, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Notifier{ses: sesClient, sns: snsClient, cfg: cfg, logger: log}
}

// SendSyncReport delivers one report over the enabled channels.
func (n *Notifier) SendSyncReport(ctx context.Context, report audit.SyncReport) error {
	subject := fmt.Sprintf("[crm-sync] %s: %d created, %d matched", report.TaskType, report.Created, report.Matched)
	body := formatReport(report)

	if n.cfg.Email.Enabled && n.ses != nil {
		if err := n.sendEmail(ctx, subject, body); err != nil {
			return errors.NewNotificationSendFailedError("email", err)
		}
		n.logger.Info("sync report emailed", map[string]interface{}{
			"task_type": report.TaskType,
			"to":        n.cfg.Email.ToEmail,
		})
	}

	if n.cfg.SMS.Enabled && n.sns != nil && len(report.Skipped) > 0 {
		msg := fmt.Sprintf("crm-sync %s skipped %d contact(s): %s",
			report.TaskType, len(report.Skipped), strings.Join(report.Skipped, ", "))
		if err := n.sendSMS(ctx, msg); err != nil {
			return errors.NewNotificationSendFailedError("sms", err)
		}
	}

	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.cfg.Email.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, message string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(n.cfg.SMS.PhoneNumber),
		Message:     aws.String(message),
	})
	return err
}

func formatReport(report audit.SyncReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:        %s\n", report.TaskType)
	fmt.Fprintf(&b, "Entity type: %s\n", report.EntityType)
	fmt.Fprintf(&b, "Created:     %d\n", report.Created)
	fmt.Fprintf(&b, "Matched:     %d\n", report.Matched)
	if len(report.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped:     %s\n", strings.Join(report.Skipped, ", "))
	}
	if len(report.DuplicateKeys) > 0 {
		fmt.Fprintf(&b, "Duplicates:  %s\n", strings.Join(report.DuplicateKeys, ", "))
	}
	fmt.Fprintf(&b, "Duration:    %dms\n", report.DurationMS)
	return b.String()
}
