package model

import "encoding/json"

// Severity is the normalized alert level of a record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity bucket in reporting order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Record is a single normalized sensor event.
type Record struct {
	ID              string            `json:"id"`
	Timestamp       string            `json:"timestamp"`
	SourceIP        string            `json:"sourceIp"`
	DestinationIP   string            `json:"destinationIp"`
	SourcePort      int               `json:"sourcePort"`
	DestinationPort int               `json:"destinationPort"`
	Protocol        string            `json:"protocol"`
	Method          string            `json:"method,omitempty"`
	URL             string            `json:"url,omitempty"`
	StatusCode      int               `json:"statusCode,omitempty"`
	Severity        Severity          `json:"severity"`
	Category        string            `json:"category"`
	Message         string            `json:"message"`
	Headers         map[string]string `json:"headers,omitempty"`
	Payload         string            `json:"payload,omitempty"`
	Raw             json.RawMessage   `json:"raw"`
	EventType       string            `json:"event_type"`
}

// RawLine is one complete line read from the event log.
type RawLine struct {
	Text   string
	Offset int64 // file offset just past the line's newline
}
