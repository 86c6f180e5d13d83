// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Classifier    ClassifierConfig   `mapstructure:"classifier"`
	Commerce      CommerceConfig     `mapstructure:"commerce"`
	Conversation  ConversationConfig `mapstructure:"conversation"`
	Channels      ChannelsConfig     `mapstructure:"channels"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- External Boundary Config ---

// ClassifierConfig holds settings for the external intent classification API.
type ClassifierConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// CommerceConfig holds settings for the e-commerce provider API.
type CommerceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// --- Conversation Core Config ---

// ConversationConfig holds thresholds and limits for the decision pipeline.
type ConversationConfig struct {
	ContextTTLHours   int     `mapstructure:"context_ttl_hours"`
	HistoryLimit      int     `mapstructure:"history_limit"`
	FAQMatchThreshold float64 `mapstructure:"faq_match_threshold"`
	MaxSearchResults  int     `mapstructure:"max_search_results"`
	TurnCostCents     int     `mapstructure:"turn_cost_cents"`

	Clarification ClarificationConfig `mapstructure:"clarification"`
	Handoff       HandoffConfig       `mapstructure:"handoff"`
}

// ClarificationConfig holds ambiguity resolution settings.
type ClarificationConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxAttempts         int     `mapstructure:"max_attempts"`
}

// HandoffConfig holds escalation trigger settings.
type HandoffConfig struct {
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
	ConfidenceStreak    int      `mapstructure:"confidence_streak"`
	LoopStreak          int      `mapstructure:"loop_streak"`
	Keywords            []string `mapstructure:"keywords"`
}

// ChannelsConfig holds per-channel transport settings.
type ChannelsConfig struct {
	Messenger MessengerConfig `mapstructure:"messenger"`
}

// MessengerConfig holds the Send API settings for the messenger channel.
type MessengerConfig struct {
	SendAPIURL  string `mapstructure:"send_api_url"`
	PageToken   string `mapstructure:"page_token"`
	VerifyToken string `mapstructure:"verify_token"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

// NotificationConfig holds settings for operator escalation notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// SchedulerConfig holds background job intervals.
type SchedulerConfig struct {
	HybridSweepInterval  int `mapstructure:"hybrid_sweep_interval"`  // seconds
	PauseRefreshInterval int `mapstructure:"pause_refresh_interval"` // seconds
}
