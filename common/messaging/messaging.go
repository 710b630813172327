// Package messaging abstracts the message bus the relay mirrors envelopes to,
// so the relay and its tools are not coupled to one broker.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to the bus.
type Message struct {
	Subject string
	Data    []byte
	// Reply is set for request/reply exchanges.
	Reply string
	// Metadata is carried as message headers.
	Metadata  map[string]string
	Timestamp time.Time
}

// Header returns the metadata value for key, or "".
func (m *Message) Header(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// MessageHandler processes a received message. Returned errors are logged by
// the implementation; there is no redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages. Publishing is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg publishes msg with its Metadata as headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// Request sends data and waits up to timeout for one reply.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	Close() error
}

// Subscriber receives messages. Every subscriber gets every message.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client is a full bus connection.
type Client interface {
	Publisher
	Subscriber

	// Drain flushes pending publishes and closes the connection.
	Drain() error

	IsConnected() bool
}
