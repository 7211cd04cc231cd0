package tailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atikulmunna/eveflow/internal/model"
)

// BenchmarkBackfill measures line splitting throughput over a 10k-line file.
func BenchmarkBackfill(b *testing.B) {
	dir := b.TempDir()
	logPath := filepath.Join(dir, "eve.json")

	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, `{"timestamp":"2026-02-17T12:00:00Z","flow_id":%d,"event_type":"flow"}`+"\n", i)
	}
	if err := os.WriteFile(logPath, []byte(sb.String()), 0644); err != nil {
		b.Fatal(err)
	}
	sink := SinkFunc(func(model.RawLine, bool) {})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tail := New(logPath)
		if err := tail.Backfill(context.Background(), sink); err != nil {
			b.Fatal(err)
		}
		tail.closeFile()
	}
}
