// Package tailer reads the event log in two phases: a one-time backfill of
// the existing content, then an open-ended tail of appended lines starting
// from the offset the backfill reached.
package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/atikulmunna/eveflow/internal/watcher"
	"go.uber.org/zap"
)

var (
	// ErrSourceMissing is returned by Backfill when the log file does not exist.
	ErrSourceMissing = errors.New("event log not found")
	// ErrPhase is returned when a phase is entered out of order.
	ErrPhase = errors.New("invalid phase transition")
)

// DefaultPollInterval is how often the tail re-checks the file when no
// filesystem notification arrives.
const DefaultPollInterval = time.Second

const readBufferSize = 64 * 1024

// Sink receives every complete line in file order. live is false for lines
// read during backfill and true for lines read while tailing.
type Sink interface {
	Accept(line model.RawLine, live bool)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(line model.RawLine, live bool)

func (f SinkFunc) Accept(line model.RawLine, live bool) { f(line, live) }

// Tailer reads one log file. It is not safe for concurrent use; Cursor is
// the only part meant to be shared.
type Tailer struct {
	path    string
	wake    <-chan watcher.Event
	poll    time.Duration
	log     *zap.Logger
	onError func(error)

	cursor Cursor
	file   *os.File
	failed string // last tail error, to log repeats quietly
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithWatcher wakes the tail on filesystem events instead of only polling.
func WithWatcher(w *watcher.Watcher) Option {
	return func(t *Tailer) { t.wake = w.Events }
}

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tailer) { t.log = l }
}

// WithErrorHook is called for every I/O error seen while tailing.
func WithErrorHook(fn func(error)) Option {
	return func(t *Tailer) { t.onError = fn }
}

// New creates a Tailer for the file at path.
func New(path string, opts ...Option) *Tailer {
	t := &Tailer{
		path:    path,
		poll:    DefaultPollInterval,
		log:     zap.NewNop(),
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cursor exposes the tailer's phase and offset for monitoring.
func (t *Tailer) Cursor() *Cursor {
	return &t.cursor
}

// Run backfills and then tails until ctx is cancelled. Only a backfill
// failure is returned; tail errors are logged and retried.
func (t *Tailer) Run(ctx context.Context, sink Sink) error {
	if err := t.Backfill(ctx, sink); err != nil {
		return err
	}
	return t.Tail(ctx, sink)
}

// Backfill reads every complete line present when it starts. A missing
// file returns ErrSourceMissing.
func (t *Tailer) Backfill(ctx context.Context, sink Sink) error {
	if err := t.cursor.advance(PhaseIdle, PhaseBackfilling); err != nil {
		return err
	}

	f, err := os.Open(t.path)
	if err != nil {
		t.cursor.stop()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, t.path)
		}
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		t.cursor.stop()
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	t.file = f

	start := time.Now()
	n, err := t.readLines(ctx, io.LimitReader(f, info.Size()), sink, false)
	if err != nil {
		t.closeFile()
		t.cursor.stop()
		return fmt.Errorf("backfill %s: %w", t.path, err)
	}

	t.log.Info("backfill complete",
		zap.String("path", t.path),
		zap.Int("lines", n),
		zap.Int64("offset", t.cursor.Offset()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Tail follows the file from the backfill offset until ctx is cancelled.
func (t *Tailer) Tail(ctx context.Context, sink Sink) error {
	if err := t.cursor.advance(PhaseBackfilling, PhaseTailing); err != nil {
		return err
	}
	defer func() {
		t.closeFile()
		t.cursor.stop()
	}()

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	wake := t.wake
	t.catchUp(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-wake:
			if !ok {
				// Watcher went away; keep going on the ticker alone.
				wake = nil
				continue
			}
			t.catchUp(ctx, sink)
		case <-ticker.C:
			t.catchUp(ctx, sink)
		}
	}
}

// catchUp reads whatever has been appended since the last read. Errors are
// reported and leave the cursor where it was, so the next wake retries.
func (t *Tailer) catchUp(ctx context.Context, sink Sink) {
	if err := t.readAppended(ctx, sink); err != nil {
		t.onError(err)
		t.closeFile()
		if msg := err.Error(); msg != t.failed {
			t.log.Warn("tail read failed, will retry", zap.String("path", t.path), zap.Error(err))
			t.failed = msg
		} else {
			t.log.Debug("tail read still failing", zap.String("path", t.path), zap.Error(err))
		}
		return
	}
	if t.failed != "" {
		t.log.Info("tail recovered", zap.String("path", t.path), zap.Int64("offset", t.cursor.Offset()))
		t.failed = ""
	}
}

func (t *Tailer) readAppended(ctx context.Context, sink Sink) error {
	info, err := os.Stat(t.path)
	if err != nil {
		return err
	}

	if t.file != nil {
		if cur, err := t.file.Stat(); err != nil || !os.SameFile(cur, info) {
			t.log.Info("event log replaced, reopening", zap.String("path", t.path))
			t.closeFile()
		}
	}
	if t.file == nil {
		f, err := os.Open(t.path)
		if err != nil {
			return err
		}
		t.file = f
	}

	if info.Size() < t.cursor.Offset() {
		t.log.Warn("event log truncated, restarting from beginning",
			zap.String("path", t.path),
			zap.Int64("size", info.Size()),
			zap.Int64("offset", t.cursor.Offset()),
		)
		t.cursor.setOffset(0)
	}
	if info.Size() == t.cursor.Offset() {
		return nil
	}

	if _, err := t.file.Seek(t.cursor.Offset(), io.SeekStart); err != nil {
		return err
	}
	_, err = t.readLines(ctx, t.file, sink, true)
	return err
}

// readLines emits each newline-terminated line from r and advances the
// cursor past it. A trailing partial line is left unread so it is picked
// up whole once its newline lands.
func (t *Tailer) readLines(ctx context.Context, r io.Reader, sink Sink, live bool) (int, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	offset := t.cursor.Offset()
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, nil
		}
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		offset += int64(len(line))
		t.cursor.setOffset(offset)
		n++
		sink.Accept(model.RawLine{Text: string(trimEOL(line)), Offset: offset}, live)
	}
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

func trimEOL(b []byte) []byte {
	b = b[:len(b)-1]
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return b
}
