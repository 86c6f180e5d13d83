// Package notify tells merchant operators when a shopper escalates.
// Delivery is fire-and-forget: a notification outage never delays or
// fails the shopper's turn.
package notify

import (
	"context"
	"fmt"
	"time"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/models"
)

// EmailSender and SMSSender are satisfied by the SES and SNS clients.
type EmailSender interface {
	SendPlainEmail(ctx context.Context, from, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

type Config struct {
	FromAddress string
	SendTimeout time.Duration
}

type Notifier struct {
	email  EmailSender
	sms    SMSSender
	config Config
	logger logger.Logger
}

func NewNotifier(email EmailSender, sms SMSSender, config Config, log logger.Logger) *Notifier {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &Notifier{
		email:  email,
		sms:    sms,
		config: config,
		logger: log.WithFields(map[string]interface{}{
			"component": "notify",
		}),
	}
}

// NotifyHandoff emails the operator (and texts them when a phone number
// is configured) about an escalated conversation. Runs in its own
// goroutine with a detached context so it survives the turn.
func (n *Notifier) NotifyHandoff(_ context.Context, merchant *models.Merchant, sessionID string, result models.HandoffResult) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.SendTimeout)
		defer cancel()

		subject := fmt.Sprintf("[%s] Shopper needs a human (%s)", merchant.Name, result.Reason)
		body := fmt.Sprintf(
			"A shopper in conversation %s asked for help.\n\nReason: %s\n",
			sessionID, describeReason(result),
		)

		if n.email != nil && merchant.OperatorEmail != "" {
			if err := n.email.SendPlainEmail(ctx, n.config.FromAddress, merchant.OperatorEmail, subject, body); err != nil {
				metrics.NotificationsFailed.WithLabelValues("email").Inc()
				n.logger.WithError(err).Error("handoff email failed", map[string]interface{}{
					"merchantId": merchant.ID,
					"sessionId":  sessionID,
				})
			}
		}

		if n.sms != nil && merchant.OperatorPhone != "" {
			text := fmt.Sprintf("%s: shopper waiting for a human (%s). Conversation %s.", merchant.Name, result.Reason, sessionID)
			if err := n.sms.SendSMS(ctx, merchant.OperatorPhone, text); err != nil {
				metrics.NotificationsFailed.WithLabelValues("sms").Inc()
				n.logger.WithError(err).Error("handoff sms failed", map[string]interface{}{
					"merchantId": merchant.ID,
					"sessionId":  sessionID,
				})
			}
		}
	}()
}

func describeReason(result models.HandoffResult) string {
	switch result.Reason {
	case models.HandoffReasonKeyword:
		return fmt.Sprintf("the shopper said %q", result.MatchedKeyword)
	case models.HandoffReasonLowConfidence:
		return fmt.Sprintf("%d consecutive low-confidence turns", result.ConfidenceCount)
	case models.HandoffReasonClarificationLoop:
		return fmt.Sprintf("stuck in a clarification loop (%d rounds)", result.LoopCount)
	default:
		return string(result.Reason)
	}
}
