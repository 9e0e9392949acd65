package mqtt

import (
	"context"
)

// MessageHandler is invoked for every message delivered on a subscribed
// topic filter. The topic argument is the concrete topic, not the filter.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is a thin broker-session abstraction over the paho stack.
type Client interface {
	// Start begins connecting to the broker and returns without waiting
	// for the connection. Use AwaitConnection to block until connected.
	Start(ctx context.Context) error

	// Disconnect closes the session cleanly.
	Disconnect(ctx context.Context)

	// Publish sends one message.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Subscriptions
	// survive reconnects; the client replays them on connection up.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe drops the handler and unsubscribes at the broker.
	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error
}
