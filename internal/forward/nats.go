// Package forward republishes live records to NATS.
package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atikulmunna/eveflow/internal/hub"
	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is used when none is configured.
const DefaultSubject = "eveflow.records"

// Publisher is the part of *nats.Conn the forwarder uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber is the part of *hub.Hub the forwarder uses.
type Subscriber interface {
	Subscribe() *hub.Subscription
	Unsubscribe(*hub.Subscription)
}

// Forwarder is a hub subscriber that publishes every new record as JSON.
// Initial snapshots are skipped; only records ingested while it runs are sent.
type Forwarder struct {
	pub     Publisher
	subject string
	log     *zap.Logger
	onError func(error)
}

// New creates a Forwarder publishing to subject.
func New(pub Publisher, subject string, log *zap.Logger, onError func(error)) *Forwarder {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Forwarder{pub: pub, subject: subject, log: log, onError: onError}
}

// Run forwards until ctx is cancelled. If the hub prunes the subscription
// for falling behind, Run subscribes again.
func (f *Forwarder) Run(ctx context.Context, h Subscriber) {
	for ctx.Err() == nil {
		sub := h.Subscribe()
		f.drain(ctx, sub)
		h.Unsubscribe(sub)
		if ctx.Err() == nil {
			f.log.Warn("forwarder subscription ended, resubscribing")
		}
	}
}

func (f *Forwarder) drain(ctx context.Context, sub *hub.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if msg.Type != hub.NewLog {
				continue
			}
			rec, ok := msg.Data.(model.Record)
			if !ok {
				continue
			}
			if err := f.publish(rec); err != nil {
				f.onError(err)
				f.log.Warn("forward failed", zap.String("id", rec.ID), zap.Error(err))
			}
		}
	}
}

func (f *Forwarder) publish(rec model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := f.pub.Publish(f.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", f.subject, err)
	}
	return nil
}

// Dial connects to NATS with unlimited reconnects, logging connection
// state changes.
func Dial(url string, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("eveflow"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
