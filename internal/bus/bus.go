package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cskr/pubsub"
)

// Subscription receives every message published on its topics.
type Subscription chan any

// MessageBus fans device events out to the controller, the correlator, the
// journal and the UI.
type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

const subscriberBuffer = 128

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger

	// mu is held shared around every call into ps and exclusively by Close,
	// so nothing reaches ps after Shutdown.
	mu     sync.RWMutex
	closed bool
}

func New(logger *slog.Logger) *PubSubBus {
	if logger == nil {
		logger = slog.Default().With("component", "bus")
	}

	return &PubSubBus{
		ps:     pubsub.New(subscriberBuffer),
		logger: logger,
	}
}

// Publish delivers msg to every subscriber of topic. Messages published after
// Close are dropped.
func (b *PubSubBus) Publish(topic string, msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Debug("publish after close dropped", "topic", topic)

		return
	}
	b.logger.Debug("publish", "topic", topic, "payload_type", fmt.Sprintf("%T", msg))
	b.ps.Pub(msg, topic)
}

// Subscribe registers one channel for all given topics. After Close the
// returned channel is already closed.
func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		ch := make(Subscription)
		close(ch)

		return ch
	}
	b.logger.Debug("subscribe", "topics", topics)

	return b.ps.Sub(topics...)
}

// Unsubscribe detaches ch from topics, or from everything when none are given.
// It is a no-op once the bus is closed, since Close already closed ch.
func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.logger.Debug("unsubscribe", "topics", topics)
	b.ps.Unsub(ch, topics...)
}

// Close closes every subscription channel. It is safe to call more than once.
func (b *PubSubBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

// Listen subscribes to topic and calls handle for every message of type T
// until handle returns false, ctx ends or the bus closes. The subscription is
// in place when Listen returns.
func Listen[T any](ctx context.Context, b MessageBus, topic string, handle func(T) bool) {
	sub := b.Subscribe(topic)
	go func() {
		defer b.Unsubscribe(sub, topic)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				msg, ok := raw.(T)
				if !ok {
					continue
				}
				if !handle(msg) {
					return
				}
			}
		}
	}()
}
