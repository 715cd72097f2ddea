package webhook

import (
	"errors"
	"time"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
)

var (
	ErrForwardFailed = errors.New("webhook forward failed")
	ErrQueueFull     = errors.New("webhook queue is full")
	ErrEngineClosed  = errors.New("webhook engine is shut down")
)

// Envelope is the JSON body posted for each relayed message.
type Envelope struct {
	GroupID  string `json:"groupId"`
	SenderID string `json:"senderId"`
	Message  string `json:"message"`
	PushName string `json:"pushName"`
}

type DeliveryStatus string

const (
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliveryDropped  DeliveryStatus = "dropped"
)

type Config struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	Workers    int
	QueueSize  int
	RetryLimit int
	RetryDelay time.Duration
	UserAgent  string
}

func LoadConfig() Config {
	return Config{
		// WEBHOOK_URL: default "http://localhost:5000/whatsapp-webhook"
		URL: env.GetEnvStringOrDefault("WEBHOOK_URL", "http://localhost:5000/whatsapp-webhook"),
		// WEBHOOK_SECRET: default "" (unsigned)
		Secret:  env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		Timeout: env.GetEnvDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
		Workers: env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4),
		// WEBHOOK_QUEUE_SIZE: default 1000, envelopes beyond it are dropped
		QueueSize: env.GetEnvIntOrDefault("WEBHOOK_QUEUE_SIZE", 1000),
		// WEBHOOK_RETRY_LIMIT: default 1, a single attempt
		RetryLimit: env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 1),
		RetryDelay: env.GetEnvDurationOrDefault("WEBHOOK_RETRY_DELAY", 2*time.Second),
		UserAgent:  env.GetEnvStringOrDefault("WEBHOOK_USER_AGENT", "WhatsApp-Webhook-Relay/1.0"),
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "WhatsApp-Webhook-Relay/1.0"
	}
	return c
}
