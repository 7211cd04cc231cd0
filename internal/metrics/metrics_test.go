package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RecordsIngested.WithLabelValues("backfill").Add(3)
	m.RecordsIngested.WithLabelValues("tail").Inc()
	m.RecordsRejected.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsIngested.WithLabelValues("backfill")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsIngested.WithLabelValues("tail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected))
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.RegisterGauges(Gauges{
		Buffered:    func() int { return 12 },
		Subscribers: func() int { return 2 },
		Offset:      func() int64 { return 4096 },
	})
	m.TailErrors.Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		"eveflow_buffer_records 12",
		"eveflow_subscribers 2",
		"eveflow_tail_offset_bytes 4096",
		"eveflow_tail_errors_total 1",
	} {
		assert.True(t, strings.Contains(text, want), "missing %q", want)
	}
}
