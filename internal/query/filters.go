package query

import (
	"net/url"
	"strings"
	"time"

	"github.com/atikulmunna/eveflow/internal/model"
)

// Filters narrows a query. Every set field must match (AND). Empty fields
// match everything.
type Filters struct {
	Severities []model.Severity
	Protocols  []string
	// The time range applies only when both bounds are set.
	StartDate time.Time
	EndDate   time.Time
	// Search is a case-insensitive substring matched against source IP,
	// destination IP, message and URL.
	Search string
}

// ParseFilters reads filters from query parameters. severity and protocol
// are comma-separated lists; unparseable dates are treated as absent.
func ParseFilters(v url.Values) Filters {
	f := Filters{
		Protocols: splitList(v.Get("protocol")),
		Search:    v.Get("search"),
	}
	for _, s := range splitList(v.Get("severity")) {
		f.Severities = append(f.Severities, model.Severity(strings.ToLower(s)))
	}
	f.StartDate, _ = ParseTime(v.Get("startDate"))
	f.EndDate, _ = ParseTime(v.Get("endDate"))
	return f
}

func (f Filters) hasRange() bool {
	return !f.StartDate.IsZero() && !f.EndDate.IsZero()
}

// Match reports whether rec satisfies every filter.
func (f Filters) Match(rec model.Record) bool {
	if len(f.Severities) > 0 && !contains(f.Severities, rec.Severity) {
		return false
	}
	if len(f.Protocols) > 0 && !contains(f.Protocols, rec.Protocol) {
		return false
	}
	if f.hasRange() {
		ts, ok := ParseTime(rec.Timestamp)
		if !ok || ts.Before(f.StartDate) || ts.After(f.EndDate) {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !containsFold(rec.SourceIP, needle) &&
			!containsFold(rec.DestinationIP, needle) &&
			!containsFold(rec.Message, needle) &&
			!containsFold(rec.URL, needle) {
			return false
		}
	}
	return true
}

// timeLayouts covers RFC 3339 and the sensor's "+0000" offset form.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses the timestamp formats seen in event logs and query strings.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(s, lowerNeedle string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerNeedle)
}
