// Package bus is the in-process message bus carrying raw scored packets
// into the pipeline and smoothed updates out of it.
package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// Topics carried by the bus.
const (
	// TopicShapUpdates carries raw scored packets into the pipeline.
	TopicShapUpdates = "shap_updates"
	// TopicWinProbUpdates carries smoothed win-probability messages out.
	TopicWinProbUpdates = "winprob_updates"
)

const defaultBufferSize = 256

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// WithBufferSize sets the per-subscriber output channel buffer.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bus wraps an in-process publish/subscribe channel. Every subscriber of a
// topic receives every message published after it subscribed; messages
// published with no subscriber are dropped.
type Bus struct {
	log    logger.Logger
	buffer int
	pubsub *gochannel.GoChannel
}

// New creates a bus with configuration options.
func New(opts ...Option) *Bus {
	b := &Bus{
		buffer: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	if b.log == nil {
		b.log = logger.Get().Named("bus")
	}

	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(b.buffer),
	}, newLoggerAdapter(b.log))

	return b
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordBusPublishError()
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b.PublishRaw(ctx, topic, data)
}

// PublishRaw publishes pre-encoded bytes on topic.
func (b *Bus) PublishRaw(ctx context.Context, topic string, data []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		metrics.RecordBusPublishError()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.RecordBusPublished()
	return nil
}

// Subscribe returns the message stream for topic. The stream closes when
// ctx is cancelled or the bus is closed. Consumers must Ack every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return ch, nil
}

// Close shuts the bus down and closes every subscriber stream.
func (b *Bus) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	return nil
}
