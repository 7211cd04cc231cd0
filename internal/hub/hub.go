// Package hub fans new records out to live subscribers.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/atikulmunna/eveflow/internal/model"
	"go.uber.org/zap"
)

// MessageType names the two messages a subscriber can receive.
type MessageType string

const (
	// InitialLogs carries the snapshot sent once, first, to each subscriber.
	InitialLogs MessageType = "initial-logs"
	// NewLog carries one record ingested after the subscriber joined.
	NewLog MessageType = "new-log"
)

const (
	DefaultSnapshotSize = 50
	DefaultQueueSize    = 256
	// DefaultMaxMisses is how many consecutive dropped messages mark a
	// subscriber as gone.
	DefaultMaxMisses = 128
)

// Message is what subscribers receive. Data is []model.Record for
// InitialLogs and model.Record for NewLog.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// Source supplies the newest records for a subscriber's initial snapshot.
type Source interface {
	Snapshot(n int) []model.Record
}

// Subscription is one subscriber's queue. Its channel is closed when the
// subscription ends, either by Unsubscribe or by pruning.
type Subscription struct {
	ch     chan Message
	misses atomic.Int32
}

// C returns the channel to read messages from.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Hub tracks subscribers and broadcasts records to them without blocking.
type Hub struct {
	src          Source
	snapshotSize int
	queueSize    int
	maxMisses    int32
	log          *zap.Logger
	onDrop       func()

	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	dropped atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithSnapshotSize sets how many records the initial snapshot carries.
func WithSnapshotSize(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.snapshotSize = n
		}
	}
}

// WithQueueSize sets each subscriber's buffered queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithMaxMisses sets the consecutive-drop limit before a subscriber is
// pruned. Zero disables pruning.
func WithMaxMisses(n int) Option {
	return func(h *Hub) { h.maxMisses = int32(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithDropHook is called once per message dropped for a slow subscriber.
func WithDropHook(fn func()) Option {
	return func(h *Hub) { h.onDrop = fn }
}

// New creates a Hub that takes initial snapshots from src.
func New(src Source, opts ...Option) *Hub {
	h := &Hub{
		src:          src,
		snapshotSize: DefaultSnapshotSize,
		queueSize:    DefaultQueueSize,
		maxMisses:    DefaultMaxMisses,
		log:          zap.NewNop(),
		onDrop:       func() {},
		subs:         make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber. The first message on its channel
// is always the InitialLogs snapshot, newest first; NewLog messages follow.
//
// The snapshot is taken under the hub lock, so no Publish runs between the
// snapshot and registration. A record already in the store whose Publish
// has not yet run can still arrive both in the snapshot and as a NewLog.
// That single duplicate is tolerated rather than serializing ingestion
// with every subscribe.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Message, h.queueSize+1)}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub.ch <- Message{Type: InitialLogs, Data: h.src.Snapshot(h.snapshotSize)}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Removing a subscription
// that is already gone does nothing.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) bool {
	if _, ok := h.subs[sub]; !ok {
		return false
	}
	delete(h.subs, sub)
	close(sub.ch)
	return true
}

// Publish sends rec to every subscriber. A full queue drops the message for
// that subscriber only. Subscribers that keep missing are pruned afterwards.
func (h *Hub) Publish(rec model.Record) {
	msg := Message{Type: NewLog, Data: rec}

	var stale []*Subscription
	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
			sub.misses.Store(0)
		default:
			h.dropped.Add(1)
			h.onDrop()
			if n := sub.misses.Add(1); h.maxMisses > 0 && n >= h.maxMisses {
				stale = append(stale, sub)
			}
		}
	}
	h.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range stale {
		if h.removeLocked(sub) {
			h.log.Warn("pruned unresponsive subscriber", zap.Int32("missed", sub.misses.Load()))
		}
	}
	h.mu.Unlock()
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of messages dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}
