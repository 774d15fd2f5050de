// Package natsutil provides typed JSON publish/subscribe/request helpers
// over NATS with OpenTelemetry trace propagation in message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RetryHeader counts how many times a message has been redelivered.
const RetryHeader = "X-Retry-Count"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Requester is satisfied by *nats.Conn.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// headerCarrier adapts nats.Msg headers to propagation.TextMapCarrier.
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

// NewMsg encodes v as JSON for subject and injects the trace context of ctx.
func NewMsg[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header)}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

// Publish encodes v and publishes it to subject.
func Publish[T any](ctx context.Context, p Publisher, subject string, v T) error {
	msg, err := NewMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return p.PublishMsg(msg)
}

// Decode unmarshals msg into T and returns a context carrying the trace
// extracted from its headers.
func Decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return ctx, v, fmt.Errorf("natsutil: decode %s: %w", msg.Subject, err)
	}
	return ctx, v, nil
}

// Subscribe calls handler for every message that decodes into T. Messages
// that do not decode are passed to onError, which may be nil.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg, T), onError func(*nats.Msg, error)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, v, err := Decode[T](msg)
		if err != nil {
			if onError != nil {
				onError(msg, err)
			}
			return
		}
		handler(ctx, msg, v)
	})
}

// Request sends req and decodes the reply. Without a deadline on ctx the
// call is bounded by nats.DefaultTimeout.
func Request[Req, Resp any](ctx context.Context, r Requester, subject string, req Req) (Resp, error) {
	var zero Resp
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	msg, err := NewMsg(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	resp, err := r.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	_, out, err := Decode[Resp](resp)
	return out, err
}

// RetryCount reads RetryHeader; missing or malformed values are 0.
func RetryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(RetryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Redeliver copies msg to subject with RetryHeader set to retries. Other
// headers, including trace context, are kept.
func Redeliver(msg *nats.Msg, subject string, retries int) *nats.Msg {
	out := &nats.Msg{Subject: subject, Data: msg.Data, Header: make(nats.Header)}
	for k, v := range msg.Header {
		out.Header[k] = append([]string(nil), v...)
	}
	out.Header.Set(RetryHeader, strconv.Itoa(retries))
	return out
}
