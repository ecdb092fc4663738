package mq

import (
	"context"
	"time"
)

// MessageQueue is the queue abstraction the judge service consumes tasks from
// and publishes results to.
type MessageQueue interface {
	Producer
	Consumer

	// Ping verifies the message queue connection is alive
	Ping(ctx context.Context) error

	// Close stops consumers and closes the producer
	Close() error
}

// Producer defines the interface for publishing messages
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer defines the interface for consuming messages
type Consumer interface {
	// SubscribeWithOptions registers handler for topic. The handler returns nil
	// to commit the message; an error triggers retry and, once exhausted, the dead letter topic.
	SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error

	// Start starts consuming messages
	Start() error

	// Stop gracefully stops consuming messages
	Stop() error
}

// Message represents a message in the queue
type Message struct {
	ID         string            `json:"id"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
	Timestamp  time.Time         `json:"timestamp"`
	Priority   uint8             `json:"priority"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
	Expiration time.Duration     `json:"expiration"`
}

// HandlerFunc processes one message.
type HandlerFunc func(ctx context.Context, message *Message) error

// FetchLimiter bounds how many fetched messages are in flight.
type FetchLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup is the Kafka consumer group name
	ConsumerGroup string

	// Concurrency sets the number of handler goroutines. Default: 1
	Concurrency int

	// MaxRetries sets the handler retries per message. Default: 3
	MaxRetries int

	// RetryDelay sets the delay between retries. Default: 1 second
	RetryDelay time.Duration

	// DeadLetterTopic receives messages after max retries
	DeadLetterTopic string

	// MessageTTL drops messages older than this without handling them
	MessageTTL time.Duration

	// Limiter, when set, is acquired before each fetch and released after handling
	Limiter FetchLimiter
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:       body,
		Headers:    make(map[string]string),
		Timestamp:  time.Now(),
		MaxRetries: 3,
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}

// Expired reports whether the message outlived its expiration at now.
func (m *Message) Expired(now time.Time) bool {
	if m.Expiration <= 0 || m.Timestamp.IsZero() {
		return false
	}
	return now.Sub(m.Timestamp) > m.Expiration
}
