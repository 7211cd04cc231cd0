package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atikulmunna/eveflow/internal/aggregator"
	"github.com/atikulmunna/eveflow/internal/hub"
	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/atikulmunna/eveflow/internal/query"
	"github.com/atikulmunna/eveflow/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *store.Store
	hub   *hub.Hub
	srv   *Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st := store.New(100)
	h := hub.New(st, hub.WithSnapshotSize(50))
	agg := aggregator.New(aggregator.Probes{Buffered: st.Len, Subscribers: h.Subscribers})
	return &fixture{store: st, hub: h, srv: New(h, query.New(st), agg, opts)}
}

func rec(id string, sev model.Severity, proto string) model.Record {
	return model.Record{
		ID:        id,
		Timestamp: "2024-03-01T10:00:00.000Z",
		SourceIP:  "10.0.0.1",
		Protocol:  proto,
		Severity:  sev,
		Category:  "alert",
		Message:   "test",
		EventType: "alert",
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestLogsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.InsertFront(rec("a", model.SeverityLow, "TCP"))
	f.store.InsertFront(rec("b", model.SeverityHigh, "UDP"))
	f.store.InsertFront(rec("c", model.SeverityHigh, "TCP"))

	w := get(t, f.srv.Handler(), "/logs?severity=high&limit=1&page=2")
	require.Equal(t, http.StatusOK, w.Code)

	var res query.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 1, res.Limit)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, "b", res.Logs[0].ID)
}

func TestLogsEndpointDefaults(t *testing.T) {
	f := newFixture(t, Options{})

	w := get(t, f.srv.Handler(), "/logs?page=abc&limit=-3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"logs":[],"total":0,"page":1,"limit":50}`, w.Body.String())
}

func TestLogByID(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.InsertFront(rec("a", model.SeverityLow, "TCP"))

	w := get(t, f.srv.Handler(), "/logs/a")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "a", got.ID)

	w = get(t, f.srv.Handler(), "/logs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"log not found"}`, w.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.InsertFront(rec("a", model.SeverityLow, "TCP"))
	f.store.InsertFront(rec("b", model.SeverityHigh, "TCP"))

	w := get(t, f.srv.Handler(), "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var st model.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.TotalLogs)
	require.Len(t, st.SeverityStats, 4)
	assert.Len(t, st.TimeSeriesStats, 24)
	require.Len(t, st.ProtocolStats, 1)
	assert.Equal(t, 2, st.ProtocolStats[0].Value)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.InsertFront(rec("a", model.SeverityLow, "TCP"))

	w := get(t, f.srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string           `json:"status"`
		Ingest aggregator.Stats `json:"ingest"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Ingest.Buffered)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, get(t, f.srv.Handler(), "/metrics").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("eveflow_up 1\n"))
	})
	f = newFixture(t, Options{Metrics: metrics})
	w := get(t, f.srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "eveflow_up")
}

func TestPprofOptIn(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, get(t, f.srv.Handler(), "/debug/pprof/").Code)

	f = newFixture(t, Options{Pprof: true})
	assert.Equal(t, http.StatusOK, get(t, f.srv.Handler(), "/debug/pprof/").Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebSocketInitialThenLive(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.InsertFront(rec("old-1", model.SeverityLow, "TCP"))
	f.store.InsertFront(rec("old-2", model.SeverityLow, "TCP"))

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()
	conn := dial(t, ts)

	env := readEnvelope(t, conn)
	assert.Equal(t, "initial-logs", env.Type)
	var initial []model.Record
	require.NoError(t, json.Unmarshal(env.Data, &initial))
	require.Len(t, initial, 2)
	assert.Equal(t, "old-2", initial[0].ID)

	live := rec("new-1", model.SeverityHigh, "UDP")
	f.store.InsertFront(live)
	f.hub.Publish(live)

	env = readEnvelope(t, conn)
	assert.Equal(t, "new-log", env.Type)
	var got model.Record
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "new-1", got.ID)
}

func TestWebSocketEmptyBuffer(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	env := readEnvelope(t, dial(t, ts))
	assert.Equal(t, "initial-logs", env.Type)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHubClose(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	readEnvelope(t, conn)
	f.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, Options{CORSOrigins: []string{"http://localhost:5173"}})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Subscribers())
}
