package tailer

import (
	"fmt"
	"sync/atomic"
)

// Phase is the ingestion state. Transitions only move forward:
// Idle -> Backfilling -> Tailing -> Stopped.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseBackfilling
	PhaseTailing
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBackfilling:
		return "backfilling"
	case PhaseTailing:
		return "tailing"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Cursor is the read position shared across phases. The tailer goroutine
// is the only writer; Offset and Phase may be read from anywhere.
type Cursor struct {
	offset atomic.Int64
	phase  atomic.Int32
}

// Offset returns the byte offset just past the last complete line consumed.
func (c *Cursor) Offset() int64 {
	return c.offset.Load()
}

// Phase returns the current ingestion phase.
func (c *Cursor) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Cursor) setOffset(off int64) {
	c.offset.Store(off)
}

// advance moves from one phase to the next, failing if the cursor is not
// in the expected phase.
func (c *Cursor) advance(from, to Phase) error {
	if !c.phase.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: cannot enter %s from %s", ErrPhase, to, c.Phase())
	}
	return nil
}

// stop moves to PhaseStopped from any phase.
func (c *Cursor) stop() {
	c.phase.Store(int32(PhaseStopped))
}
