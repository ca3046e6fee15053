// Package notify announces completed rebuilds on NATS so that downstream
// consumers can refresh caches built on the index.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubject is the subject rebuild events are published on.
const DefaultSubject = "logsift.rebuild.completed"

// RebuildEvent describes a finished rebuild.
type RebuildEvent struct {
	Mode         string    `json:"mode"`
	Collection   string    `json:"collection"`
	Granularity  string    `json:"granularity"`
	Repositories int       `json:"repositories"`
	Commits      int       `json:"commits"`
	Points       int       `json:"points"`
	FinishedAt   time.Time `json:"finished_at"`
}

// msgPublisher is the part of *nats.Conn the publisher uses.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends rebuild events to a NATS subject.
type Publisher struct {
	conn    msgPublisher
	closer  func()
	subject string
}

// Connect dials NATS at url.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("logsift"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: nc, closer: nc.Close, subject: subject}, nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish serializes ev as JSON and publishes it, injecting the trace
// context from ctx into the message headers. It waits for the server to
// acknowledge the flush so the event is not lost on process exit.
func (p *Publisher) Publish(ctx context.Context, ev RebuildEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

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
