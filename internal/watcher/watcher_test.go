package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolvePlainPath(t *testing.T) {
	got, err := Resolve("/var/log/suricata/eve.json")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/var/log/suricata/eve.json" {
		t.Errorf("plain path should pass through, got %q", got)
	}
}

func TestResolveGlob(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "suricata")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	eve := filepath.Join(sub, "eve.json")
	if err := os.WriteFile(eve, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(filepath.Join(dir, "**", "eve.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got != eve {
		t.Errorf("expected %q, got %q", eve, got)
	}

	if _, err := Resolve(filepath.Join(dir, "**", "*.log")); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(sub, "eve2.json"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(filepath.Join(dir, "**", "*.json")); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eve.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{}\n")
	f.Close()

	select {
	case ev := <-w.Events:
		if filepath.Clean(ev.Path) != w.Path() {
			t.Errorf("expected event for %q, got %q", w.Path(), ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for write event")
	}
}
