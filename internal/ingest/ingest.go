// Package ingest connects the tailer to the store and the hub.
package ingest

import (
	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/atikulmunna/eveflow/internal/normalizer"
	"go.uber.org/zap"
)

// Buffer is where accepted records are kept.
type Buffer interface {
	InsertFront(rec model.Record)
}

// Broadcaster delivers live records to subscribers.
type Broadcaster interface {
	Publish(rec model.Record)
}

// Hooks observe ingestion outcomes. Nil hooks are skipped.
type Hooks struct {
	Ingested func(live bool)
	Rejected func()
}

// Ingestor normalizes each line, stores it and, for live lines, publishes
// it. It implements tailer.Sink.
type Ingestor struct {
	norm  *normalizer.Normalizer
	buf   Buffer
	bcast Broadcaster
	hooks Hooks
	log   *zap.Logger
}

// New creates an Ingestor. bcast may be nil when nothing consumes live
// records.
func New(norm *normalizer.Normalizer, buf Buffer, bcast Broadcaster, hooks Hooks, log *zap.Logger) *Ingestor {
	if norm == nil {
		norm = normalizer.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{norm: norm, buf: buf, bcast: bcast, hooks: hooks, log: log}
}

// Accept handles one line. Rejected lines are logged and dropped before
// they touch the buffer or any subscriber. A live record is inserted before
// it is published, so a subscriber told about it can already query it.
func (in *Ingestor) Accept(line model.RawLine, live bool) {
	rec, err := in.norm.Normalize(line.Text)
	if err != nil {
		in.log.Warn("skipping malformed line", zap.Int64("offset", line.Offset), zap.Error(err))
		if in.hooks.Rejected != nil {
			in.hooks.Rejected()
		}
		return
	}

	in.buf.InsertFront(rec)
	if live && in.bcast != nil {
		in.bcast.Publish(rec)
	}
	if in.hooks.Ingested != nil {
		in.hooks.Ingested(live)
	}
}
