// Package natsutil provides typed NATS publish/subscribe helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// Publisher is the subset of *nats.Conn used to emit messages.
type Publisher interface {
	PublishMsg(*nats.Msg) error
}

// Handler processes one decoded message. A returned error is logged.
type Handler[T any] func(context.Context, T) error

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into message headers.
func Publish[T any](ctx context.Context, p Publisher, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return p.PublishMsg(msg)
}

// Subscribe registers a handler that decodes JSON messages of type T.
// Malformed messages are logged and dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler Handler[T]) (*nats.Subscription, error) {
	return nc.Subscribe(subject, dispatch(subject, handler))
}

// SubscribeQueue is Subscribe with a queue group, so each message is
// delivered to exactly one member of the group.
func SubscribeQueue[T any](nc *nats.Conn, subject, queue string, handler Handler[T]) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, dispatch(subject, handler))
}

func dispatch[T any](subject string, handler Handler[T]) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			slog.Warn("dropping malformed message", "subject", subject, "err", err)
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		if err := handler(ctx, v); err != nil {
			slog.Error("message handler failed", "subject", subject, "err", err)
		}
	}
}
