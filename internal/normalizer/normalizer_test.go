package normalizer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/atikulmunna/eveflow/internal/model"
)

func fixed() *Normalizer {
	return New(
		WithClock(func() time.Time { return time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC) }),
		WithTokenSource(func() string { return "tok" }),
	)
}

func TestNormalizeHTTP(t *testing.T) {
	n := fixed()

	line := `{"timestamp":"2024-01-01T00:00:00Z","src_ip":"10.0.0.1","dest_ip":"10.0.0.2","event_type":"http","http":{"http_method":"GET","url":"/a","status":200}}`
	rec, err := n.Normalize(line)
	if err != nil {
		t.Fatal(err)
	}

	if rec.SourceIP != "10.0.0.1" {
		t.Errorf("expected sourceIp 10.0.0.1, got %q", rec.SourceIP)
	}
	if rec.DestinationIP != "10.0.0.2" {
		t.Errorf("expected destinationIp 10.0.0.2, got %q", rec.DestinationIP)
	}
	if rec.Method != "GET" {
		t.Errorf("expected method GET, got %q", rec.Method)
	}
	if rec.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", rec.StatusCode)
	}
	if rec.Severity != model.SeverityLow {
		t.Errorf("expected severity low, got %s", rec.Severity)
	}
	if rec.URL != "/a" {
		t.Errorf("expected url /a, got %q", rec.URL)
	}
	if rec.Message != "http Traffic" {
		t.Errorf("expected message 'http Traffic', got %q", rec.Message)
	}
	if rec.ID != "2024-01-01T00:00:00Z-tok" {
		t.Errorf("unexpected id %q", rec.ID)
	}
	if string(rec.Raw) != line {
		t.Errorf("raw not retained verbatim: %s", rec.Raw)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	rec, err := fixed().Normalize(`{}`)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Timestamp != "2026-02-17T12:00:00.000Z" {
		t.Errorf("expected ingestion-time fallback, got %q", rec.Timestamp)
	}
	if rec.SourceIP != "0.0.0.0" || rec.DestinationIP != "0.0.0.0" {
		t.Errorf("expected default IPs, got %q -> %q", rec.SourceIP, rec.DestinationIP)
	}
	if rec.SourcePort != 0 || rec.DestinationPort != 0 {
		t.Errorf("expected zero ports, got %d/%d", rec.SourcePort, rec.DestinationPort)
	}
	if rec.Protocol != "UNKNOWN" {
		t.Errorf("expected UNKNOWN protocol, got %q", rec.Protocol)
	}
	if rec.Category != "info" || rec.EventType != "unknown" {
		t.Errorf("unexpected category/eventType %q/%q", rec.Category, rec.EventType)
	}
	if rec.Message != "unknown Traffic" {
		t.Errorf("unexpected message %q", rec.Message)
	}
	if rec.Method != "" || rec.Headers != nil {
		t.Errorf("non-http event should carry no http fields: %+v", rec)
	}
}

func TestNormalizeAlternateFields(t *testing.T) {
	rec, err := fixed().Normalize(`{"src":"1.1.1.1","dst":"2.2.2.2","app_proto":"dns","src_port":"53","dest_port":5353,"flow_id":1234567890123456789}`)
	if err != nil {
		t.Fatal(err)
	}

	if rec.SourceIP != "1.1.1.1" || rec.DestinationIP != "2.2.2.2" {
		t.Errorf("expected alternate IP fields, got %q -> %q", rec.SourceIP, rec.DestinationIP)
	}
	if rec.Protocol != "dns" {
		t.Errorf("expected app_proto fallback, got %q", rec.Protocol)
	}
	if rec.SourcePort != 53 || rec.DestinationPort != 5353 {
		t.Errorf("unexpected ports %d/%d", rec.SourcePort, rec.DestinationPort)
	}
	if !strings.HasSuffix(rec.ID, "-1234567890123456789") {
		t.Errorf("flow id should be kept exactly, got %q", rec.ID)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		line string
		want model.Severity
	}{
		{`{"alert":{"severity":1}}`, model.SeverityLow},
		{`{"alert":{"severity":2}}`, model.SeverityMedium},
		{`{"alert":{"severity":3}}`, model.SeverityHigh},
		{`{"alert":{"severity":4}}`, model.SeverityHigh},
		{`{"alert":{"severity":"3"}}`, model.SeverityHigh},
		{`{"alert":{}}`, model.SeverityLow},
		{`{"event_type":"flow"}`, model.SeverityLow},
	}

	n := fixed()
	for _, tt := range tests {
		rec, err := n.Normalize(tt.line)
		if err != nil {
			t.Fatalf("%s: %v", tt.line, err)
		}
		if rec.Severity != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.line, tt.want, rec.Severity)
		}
	}
}

func TestNormalizeAlert(t *testing.T) {
	rec, err := fixed().Normalize(`{"event_type":"alert","proto":"TCP","alert":{"severity":2,"signature":"ET SCAN nmap","category":"Attempted Recon"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Message != "ET SCAN nmap" {
		t.Errorf("expected signature as message, got %q", rec.Message)
	}
	if rec.Category != "Attempted Recon" {
		t.Errorf("expected alert category, got %q", rec.Category)
	}
	if rec.Protocol != "TCP" {
		t.Errorf("expected TCP, got %q", rec.Protocol)
	}
}

func TestNormalizeHTTPHeaders(t *testing.T) {
	rec, err := fixed().Normalize(`{"event_type":"http","http":{"uri":"/login","status_code":"401","http_user_agent":"curl/8","hostname":"example.com","http_payload":"a=b"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Method != "GET" {
		t.Errorf("http event without method should default to GET, got %q", rec.Method)
	}
	if rec.URL != "/login" || rec.StatusCode != 401 {
		t.Errorf("unexpected url/status %q/%d", rec.URL, rec.StatusCode)
	}
	if rec.Headers["User-Agent"] != "curl/8" || rec.Headers["Host"] != "example.com" {
		t.Errorf("unexpected headers %v", rec.Headers)
	}
	if _, ok := rec.Headers["Content-Type"]; ok {
		t.Error("absent header should be omitted")
	}
	if rec.Payload != "a=b" {
		t.Errorf("unexpected payload %q", rec.Payload)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, line := range []string{
		`{"timestamp":`,
		``,
		`   `,
		`not json at all`,
		`[1,2,3]`,
		`null`,
		`42`,
		`{"a":1} {"b":2}`,
	} {
		_, err := fixed().Normalize(line)
		if !errors.Is(err, ErrRejected) {
			t.Errorf("%q: expected ErrRejected, got %v", line, err)
		}
	}
}

func TestNormalizeRandomToken(t *testing.T) {
	a, err := Normalize(`{"timestamp":"2024-01-01T00:00:00Z"}`)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(`{"timestamp":"2024-01-01T00:00:00Z"}`)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct random ids, both %q", a.ID)
	}
}
