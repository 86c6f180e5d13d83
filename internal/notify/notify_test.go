package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

type recordingEmail struct {
	mu      sync.Mutex
	to      string
	subject string
	body    string
	err     error
	done    chan struct{}
}

func (r *recordingEmail) SendPlainEmail(_ context.Context, _, to, subject, body string) error {
	r.mu.Lock()
	r.to, r.subject, r.body = to, subject, body
	r.mu.Unlock()
	close(r.done)
	return r.err
}

type recordingSMS struct {
	mu      sync.Mutex
	phone   string
	message string
	done    chan struct{}
}

func (r *recordingSMS) SendSMS(_ context.Context, phone, message string) error {
	r.mu.Lock()
	r.phone, r.message = phone, message
	r.mu.Unlock()
	close(r.done)
	return nil
}

func escalatedMerchant() *models.Merchant {
	return &models.Merchant{
		ID:            "merch-1",
		Name:          "Acme",
		OperatorEmail: "ops@acme.example",
		OperatorPhone: "+15550100",
	}
}

func TestNotifyHandoff_EmailAndSMS(t *testing.T) {
	email := &recordingEmail{done: make(chan struct{})}
	sms := &recordingSMS{done: make(chan struct{})}
	n := NewNotifier(email, sms, Config{FromAddress: "bot@shopbot.example"}, logger.NewNoOpLogger())

	n.NotifyHandoff(context.Background(), escalatedMerchant(), "sess-1", models.HandoffResult{
		ShouldHandoff:  true,
		Reason:         models.HandoffReasonKeyword,
		MatchedKeyword: "talk to a human",
	})

	select {
	case <-email.done:
	case <-time.After(2 * time.Second):
		t.Fatal("email never sent")
	}
	select {
	case <-sms.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sms never sent")
	}

	email.mu.Lock()
	assert.Equal(t, "ops@acme.example", email.to)
	assert.Contains(t, email.subject, "Acme")
	assert.Contains(t, email.body, "talk to a human")
	email.mu.Unlock()

	sms.mu.Lock()
	assert.Equal(t, "+15550100", sms.phone)
	assert.Contains(t, sms.message, "sess-1")
	sms.mu.Unlock()
}

func TestNotifyHandoff_NoContactsConfigured(t *testing.T) {
	merchant := &models.Merchant{ID: "merch-2", Name: "Quiet Co"}
	n := NewNotifier(nil, nil, Config{}, logger.NewNoOpLogger())

	// Must not panic or block.
	n.NotifyHandoff(context.Background(), merchant, "sess-1", models.HandoffResult{
		Reason: models.HandoffReasonLowConfidence,
	})
}

func TestNotifyHandoff_EmailFailureIsSwallowed(t *testing.T) {
	email := &recordingEmail{done: make(chan struct{}), err: errors.New("ses throttled")}
	n := NewNotifier(email, nil, Config{FromAddress: "bot@shopbot.example"}, logger.NewNoOpLogger())

	n.NotifyHandoff(context.Background(), escalatedMerchant(), "sess-1", models.HandoffResult{
		Reason:          models.HandoffReasonLowConfidence,
		ConfidenceCount: 3,
	})

	select {
	case <-email.done:
	case <-time.After(2 * time.Second):
		t.Fatal("email never attempted")
	}
}
