package aggregator

import (
	"sync"
	"time"
)

// epsSeconds is the throughput window, in one-second buckets.
const epsSeconds = 5

// Stats holds a point-in-time snapshot of ingestion health.
type Stats struct {
	Uptime          string  `json:"uptime"`
	Ingested        int64   `json:"ingested"`
	Rejected        int64   `json:"rejected"`
	EPS             float64 `json:"eps"`
	Buffered        int     `json:"buffered"`
	Subscribers     int     `json:"subscribers"`
	DroppedMessages int64   `json:"dropped_messages"`
	Phase           string  `json:"phase"`
	Offset          int64   `json:"offset"`
}

// Probes read live values owned by other components. Nil probes report zero.
type Probes struct {
	Buffered    func() int
	Subscribers func() int
	Dropped     func() int64
	Phase       func() string
	Offset      func() int64
}

// bucket counts records ingested during one wall-clock second.
type bucket struct {
	sec int64
	n   int64
}

// Aggregator counts ingested and rejected lines and derives throughput.
type Aggregator struct {
	mu        sync.RWMutex
	startTime time.Time
	ingested  int64
	rejected  int64
	buckets   [epsSeconds]bucket // indexed by unix second mod epsSeconds
	probes    Probes
	now       func() time.Time
}

// New creates an Aggregator reading component state through probes.
func New(probes Probes) *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		probes:    probes,
		now:       time.Now,
	}
}

// Ingested records one accepted record.
func (a *Aggregator) Ingested() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ingested++
	sec := a.now().Unix()
	b := &a.buckets[sec%epsSeconds]
	if b.sec != sec {
		b.sec, b.n = sec, 0
	}
	b.n++
}

// Rejected records one line the normalizer refused.
func (a *Aggregator) Rejected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected++
}

// Snapshot returns the current metrics. EPS averages the last epsSeconds
// seconds, the current one included.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	now := a.now()
	oldest := now.Unix() - epsSeconds
	var recent int64
	for _, b := range a.buckets {
		if b.sec > oldest {
			recent += b.n
		}
	}
	st := Stats{
		Uptime:   now.Sub(a.startTime).Truncate(time.Second).String(),
		Ingested: a.ingested,
		Rejected: a.rejected,
		EPS:      float64(recent) / epsSeconds,
	}
	a.mu.RUnlock()

	p := a.probes
	if p.Buffered != nil {
		st.Buffered = p.Buffered()
	}
	if p.Subscribers != nil {
		st.Subscribers = p.Subscribers()
	}
	if p.Dropped != nil {
		st.DroppedMessages = p.Dropped()
	}
	if p.Phase != nil {
		st.Phase = p.Phase()
	}
	if p.Offset != nil {
		st.Offset = p.Offset()
	}
	return st
}
