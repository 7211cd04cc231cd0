package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var (
	// ErrNoMatch is returned by Resolve when a pattern matches no file.
	ErrNoMatch = errors.New("pattern matched no file")
	// ErrAmbiguous is returned by Resolve when a pattern matches several files.
	ErrAmbiguous = errors.New("pattern matched more than one file")
)

// Event represents a change to the watched file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports changes to a single file using OS-level notifications.
// The parent directory is watched so a file that disappears and comes back
// is still noticed.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan Event
	path   string
	log    *zap.Logger
}

// New creates a Watcher for path.
func New(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		fsw:    fsw,
		Events: make(chan Event, 1),
		path:   abs,
		log:    log,
	}, nil
}

// Start begins listening for file events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Events are wake-ups; the reader always drains to EOF, so a
			// pending event already covers this one.
			select {
			case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Resolve turns a configured path into a single file path. Plain paths are
// returned unchanged so a missing file surfaces where it is opened. Glob
// patterns, including recursive ones like /var/log/**/eve.json, must match
// exactly one file.
func Resolve(pattern string) (string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern, nil
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", pattern, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%q: %w", pattern, ErrNoMatch)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q: %w: %v", pattern, ErrAmbiguous, matches)
	}
}
