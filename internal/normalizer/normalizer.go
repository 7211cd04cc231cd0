// Package normalizer converts raw EVE JSON lines into model.Record values.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/google/uuid"
)

// ErrRejected is wrapped by every error Normalize returns.
var ErrRejected = errors.New("line rejected")

const (
	defaultIP       = "0.0.0.0"
	defaultProtocol = "UNKNOWN"
	defaultCategory = "info"
	defaultType     = "unknown"

	// timestampLayout matches the millisecond UTC form sensors emit.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Normalizer turns one log line into one Record. It holds no state between
// calls; the clock and token source exist so tests can pin them.
type Normalizer struct {
	now   func() time.Time
	token func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the ingestion clock used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithTokenSource overrides the random id suffix used when no flow id exists.
func WithTokenSource(token func() string) Option {
	return func(n *Normalizer) { n.token = token }
}

// New returns a Normalizer using wall-clock time and random uuid tokens.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:   time.Now,
		token: uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize runs the default Normalizer.
func Normalize(line string) (model.Record, error) {
	return defaultNormalizer.Normalize(line)
}

// Normalize parses line as a JSON object and maps it onto a Record.
// Lines that are not a single JSON object return an error wrapping ErrRejected.
func (n *Normalizer) Normalize(line string) (model.Record, error) {
	raw := bytes.TrimSpace([]byte(line))
	if len(raw) == 0 {
		return model.Record{}, fmt.Errorf("%w: empty line", ErrRejected)
	}
	if !json.Valid(raw) {
		return model.Record{}, fmt.Errorf("%w: invalid json", ErrRejected)
	}

	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return model.Record{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if data == nil {
		return model.Record{}, fmt.Errorf("%w: not a json object", ErrRejected)
	}

	alert := object(data, "alert")
	httpInfo := object(data, "http")
	eventType := firstString(data, "event_type")

	rec := model.Record{
		Timestamp:       firstString(data, "timestamp"),
		SourceIP:        orDefault(firstString(data, "src_ip", "src"), defaultIP),
		DestinationIP:   orDefault(firstString(data, "dest_ip", "dst"), defaultIP),
		SourcePort:      firstInt(data, "src_port"),
		DestinationPort: firstInt(data, "dest_port"),
		Protocol:        orDefault(firstString(data, "proto", "app_proto"), defaultProtocol),
		Severity:        severityOf(alert),
		Category:        orDefault(firstString(alert, "category"), orDefault(eventType, defaultCategory)),
		EventType:       orDefault(eventType, defaultType),
		Raw:             json.RawMessage(raw),
	}

	// A missing timestamp falls back to ingestion time. The record is then
	// dated by when it was read, not when the sensor saw it.
	if rec.Timestamp == "" {
		rec.Timestamp = n.now().UTC().Format(timestampLayout)
	}

	rec.Message = firstString(alert, "signature")
	if rec.Message == "" {
		rec.Message = rec.EventType + " Traffic"
	}

	if eventType == "http" || httpInfo != nil {
		applyHTTP(&rec, httpInfo, eventType)
	}

	suffix := flowToken(data["flow_id"])
	if suffix == "" {
		suffix = n.token()
	}
	rec.ID = rec.Timestamp + "-" + suffix

	return rec, nil
}

// applyHTTP fills the HTTP-only fields of rec.
func applyHTTP(rec *model.Record, h map[string]any, eventType string) {
	rec.Method = firstString(h, "http_method")
	if rec.Method == "" && eventType == "http" {
		rec.Method = "GET"
	}
	rec.URL = firstString(h, "url", "uri")
	rec.StatusCode = firstInt(h, "status", "status_code")
	rec.Payload = firstString(h, "http_payload")

	headers := make(map[string]string, 3)
	for name, key := range map[string]string{
		"User-Agent":   "http_user_agent",
		"Content-Type": "http_content_type",
		"Host":         "hostname",
	} {
		if v := firstString(h, key); v != "" {
			headers[name] = v
		}
	}
	if len(headers) > 0 {
		rec.Headers = headers
	}
}

// severityOf maps alert.severity onto the severity buckets. Critical is
// never derived here; it only exists if a caller builds it explicitly.
func severityOf(alert map[string]any) model.Severity {
	v, ok := number(alert["severity"])
	switch {
	case !ok:
		return model.SeverityLow
	case v >= 3:
		return model.SeverityHigh
	case v == 2:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func object(data map[string]any, key string) map[string]any {
	if data == nil {
		return nil
	}
	m, _ := data[key].(map[string]any)
	return m
}

// firstString returns the first non-empty string value among keys.
func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstInt returns the first non-zero integer value among keys.
func firstInt(data map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := number(data[k]); ok && v != 0 {
			return int(v)
		}
	}
	return 0
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// flowToken renders a flow id exactly as the sensor wrote it.
func flowToken(v any) string {
	switch t := v.(type) {
	case json.Number:
		if t.String() == "0" {
			return ""
		}
		return t.String()
	case string:
		return t
	default:
		return ""
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
