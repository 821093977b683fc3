// Package notify is the outbound notification gateway invoked after a
// successful submission. The call is one-shot and best-effort: the committed
// business state must never be undone by a notification failing, so errors
// are returned for logging only and the pipeline ignores them.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

// Interfaces over the AWS clients for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Submission is the final snapshot handed to the gateway.
type Submission struct {
	ApplicationID string
	Identity      models.ApplicantIdentity
	Advisor       models.Advisor
	FormData      models.FormData
}

type Config struct {
	EmailEnabled bool
	FromEmail    string
	OpsEmail     string
	SMSEnabled   bool
	SMSSenderID  string
}

type Gateway struct {
	config Config
	ses    SESService
	sns    SNSService
	logger logger.Logger
}

func NewGateway(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Gateway {
	return &Gateway{
		config: cfg,
		ses:    sesClient,
		sns:    snsClient,
		logger: log.WithFields(map[string]interface{}{"component": "notify-gateway"}),
	}
}

// SubmissionReceived sends the confirmation email to the applicant, a copy
// to operations, and an SMS to the attributed advisor when one is present.
// Partial failures are collected; the caller only logs the result.
func (g *Gateway) SubmissionReceived(ctx context.Context, sub Submission) error {
	var failures []string

	if g.config.EmailEnabled && g.ses != nil {
		if err := g.sendEmail(ctx, sub); err != nil {
			failures = append(failures, fmt.Sprintf("email: %v", err))
		}
	}

	if g.config.SMSEnabled && g.sns != nil && sub.Advisor.Phone != "" {
		if err := g.sendAdvisorSMS(ctx, sub); err != nil {
			failures = append(failures, fmt.Sprintf("sms: %v", err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("notification delivery: %s", strings.Join(failures, "; "))
	}
	return nil
}

func (g *Gateway) sendEmail(ctx context.Context, sub Submission) error {
	to := []string{sub.Identity.Email}
	if g.config.OpsEmail != "" {
		to = append(to, g.config.OpsEmail)
	}

	subject := fmt.Sprintf("Application %s received", sub.ApplicationID)
	body := g.buildEmailBody(sub)

	_, err := g.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(g.config.FromEmail),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return err
	}

	g.logger.Info("submission email sent", map[string]interface{}{
		"applicationId": sub.ApplicationID,
		"to":            sub.Identity.Email,
	})
	return nil
}

func (g *Gateway) sendAdvisorSMS(ctx context.Context, sub Submission) error {
	message := fmt.Sprintf("Your client %s submitted application %s on %s.",
		sub.Identity.Name, sub.ApplicationID, time.Now().UTC().Format("2006-01-02"))

	input := &sns.PublishInput{
		PhoneNumber: aws.String(sub.Advisor.Phone),
		Message:     aws.String(message),
	}
	if g.config.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(g.config.SMSSenderID),
			},
		}
	}

	_, err := g.sns.Publish(ctx, input)
	if err != nil {
		return err
	}

	g.logger.Info("advisor sms sent", map[string]interface{}{
		"applicationId": sub.ApplicationID,
		"advisorId":     sub.Advisor.ID,
	})
	return nil
}

func (g *Gateway) buildEmailBody(sub Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", sub.Identity.Name)
	fmt.Fprintf(&b, "We have received your life insurance application (reference %s).\n", sub.ApplicationID)
	b.WriteString("Our underwriting team will review it and contact you within two business days.\n")
	if sub.Advisor.Name != "" {
		fmt.Fprintf(&b, "Your advisor %s has been notified.\n", sub.Advisor.Name)
	}
	b.WriteString("\nThank you for choosing us.\n")
	return b.String()
}
