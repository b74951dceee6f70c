// Package notify fans persisted in-app notifications out to email (SES) and
// SMS (SNS). Delivery is best effort; the in-app record is the source of truth.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SMSSender interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SenderID     string
	// BaseURL turns relative deep links into absolute ones.
	BaseURL string
	AppName string
}

const (
	defaultSubject = "{{appName}}: {{message}}"
	defaultBody    = "Hello {{name}},\n\n{{message}}\n\nOpen: {{link}}"
	defaultSMS     = "{{appName}}: {{message}} {{link}}"
)

type Dispatcher struct {
	cfg   Config
	email EmailSender
	sms   SMSSender
	log   logger.Logger
}

// NewDispatcher builds a dispatcher. A nil sender disables that channel.
func NewDispatcher(cfg Config, email EmailSender, sms SMSSender, log logger.Logger) *Dispatcher {
	if cfg.AppName == "" {
		cfg.AppName = "Workspace"
	}
	return &Dispatcher{
		cfg:   cfg,
		email: email,
		sms:   sms,
		log:   logger.ForComponent(log, "notify"),
	}
}

// Deliver sends n to recipient over every enabled channel the recipient has an
// address for. Failures of one channel do not stop the other.
func (d *Dispatcher) Deliver(ctx context.Context, recipient models.User, n models.Notification) error {
	data := map[string]interface{}{
		"appName": d.cfg.AppName,
		"name":    recipient.Name,
		"message": n.Message,
		"link":    d.absoluteLink(n.Link),
	}

	var errs []error
	if d.cfg.EmailEnabled && d.email != nil && recipient.Email != "" {
		err := d.sendEmail(ctx, recipient.Email, renderTemplate(defaultSubject, data), renderTemplate(defaultBody, data))
		errs = append(errs, d.observe("email", n, err))
	}
	if d.cfg.SMSEnabled && d.sms != nil && recipient.Phone != "" {
		err := d.sendSMS(ctx, recipient.Phone, renderTemplate(defaultSMS, data))
		errs = append(errs, d.observe("sms", n, err))
	}
	return stderrors.Join(errs...)
}

func (d *Dispatcher) observe(channel string, n models.Notification, err error) error {
	metrics.NotificationDeliveries.WithLabelValues(channel, metrics.Outcome(err)).Inc()
	if err == nil {
		return nil
	}
	d.log.Warn("Notification delivery failed", map[string]interface{}{
		"channel":        channel,
		"notificationId": n.ID,
		"userId":         n.UserID,
		"error":          err.Error(),
	})
	return errors.NewNotificationSendFailedError(channel, err)
}

func (d *Dispatcher) absoluteLink(link string) string {
	if link == "" || d.cfg.BaseURL == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return strings.TrimRight(d.cfg.BaseURL, "/") + "/" + strings.TrimLeft(link, "/")
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := d.email.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(d.cfg.FromEmail),
	})
	return err
}

func (d *Dispatcher) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if d.cfg.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(d.cfg.SenderID)},
		}
	}
	_, err := d.sms.Publish(ctx, input)
	return err
}

// renderTemplate substitutes {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return strings.TrimSpace(result)
}
