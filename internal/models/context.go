package models

import "time"

// Channel identifies the transport a conversation arrives on.
type Channel string

const (
	ChannelMessenger Channel = "messenger"
	ChannelWidget    Channel = "widget"
)

// Valid reports whether the channel is one the core knows how to render.
func (c Channel) Valid() bool {
	return c == ChannelMessenger || c == ChannelWidget
}

// HistoryEntry is a single turn in the bounded conversation history.
type HistoryEntry struct {
	Role      string    `json:"role"` // "shopper" or "bot"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HybridMode tracks an operator takeover of a conversation.
type HybridMode struct {
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the takeover window has lapsed.
func (h HybridMode) Expired(now time.Time) bool {
	return h.Active && !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt)
}

// ConversationContext is the cross-turn state for one shopper session.
// The store is the long-lived owner; a turn's pipeline invocation owns
// the loaded copy until it writes it back.
type ConversationContext struct {
	SessionID          string                 `json:"sessionId"`
	MerchantID         string                 `json:"merchantId"`
	Channel            Channel                `json:"channel"`
	History            []HistoryEntry         `json:"history,omitempty"`
	ExtractedEntities  map[string]interface{} `json:"extractedEntities,omitempty"`
	PreviousIntents    []string               `json:"previousIntents,omitempty"`
	ConsentGranted     bool                   `json:"consentGranted"`
	IsReturningShopper bool                   `json:"isReturningShopper"`
	Hybrid             HybridMode             `json:"hybrid"`
	MessageCount       int                    `json:"messageCount"`
	CreatedAt          time.Time              `json:"createdAt,omitempty"`
	LastActivityAt     time.Time              `json:"lastActivityAt,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// NewConversationContext returns an empty context for an unseen session.
func NewConversationContext(sessionID, merchantID string, channel Channel) *ConversationContext {
	return &ConversationContext{
		SessionID:         sessionID,
		MerchantID:        merchantID,
		Channel:           channel,
		ExtractedEntities: make(map[string]interface{}),
		Metadata:          make(map[string]interface{}),
	}
}

// MergeEntities merges newly extracted entities into the context.
// A newer non-nil value overwrites a key; nil or missing never erases
// a known value.
func (c *ConversationContext) MergeEntities(entities map[string]interface{}) {
	if len(entities) == 0 {
		return
	}
	if c.ExtractedEntities == nil {
		c.ExtractedEntities = make(map[string]interface{}, len(entities))
	}
	for k, v := range entities {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		c.ExtractedEntities[k] = v
	}
}

// Entity returns a known entity value as a string, or "" when absent.
func (c *ConversationContext) Entity(key string) string {
	if c.ExtractedEntities == nil {
		return ""
	}
	if v, ok := c.ExtractedEntities[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// HasEntity reports whether a non-nil value is known for key.
func (c *ConversationContext) HasEntity(key string) bool {
	if c.ExtractedEntities == nil {
		return false
	}
	v, ok := c.ExtractedEntities[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

// AppendTurn records one exchange in the history, trimming to limit.
func (c *ConversationContext) AppendTurn(role, message string, limit int) {
	c.History = append(c.History, HistoryEntry{
		Role:      role,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if limit > 0 && len(c.History) > limit {
		c.History = c.History[len(c.History)-limit:]
	}
}

// LastIntent returns the most recent classified intent, or "".
func (c *ConversationContext) LastIntent() string {
	if len(c.PreviousIntents) == 0 {
		return ""
	}
	return c.PreviousIntents[len(c.PreviousIntents)-1]
}
