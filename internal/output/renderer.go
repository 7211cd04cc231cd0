package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Renderer writes records to an output stream.
type Renderer interface {
	Render(rec model.Record) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	styleHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	styleCrit   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("196")).
			Bold(true) // white on red
	styleProto = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
)

// TextRenderer prints one line per record with severity-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(rec model.Record) error {
	line := fmt.Sprintf("%s %s %s %s:%d -> %s:%d %s",
		rec.Timestamp,
		styleSeverityTag(rec.Severity),
		styleProto.Render(fmt.Sprintf("%-5s", rec.Protocol)),
		rec.SourceIP, rec.SourcePort,
		rec.DestinationIP, rec.DestinationPort,
		rec.Message,
	)
	if rec.StatusCode != 0 {
		line += fmt.Sprintf(" [%s %s %d]", rec.Method, rec.URL, rec.StatusCode)
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func styleSeverityTag(sev model.Severity) string {
	padded := fmt.Sprintf("%-8s", sev)
	switch sev {
	case model.SeverityMedium:
		return styleMedium.Render(padded)
	case model.SeverityHigh:
		return styleHigh.Render(padded)
	case model.SeverityCritical:
		return styleCrit.Render(padded)
	default:
		return styleLow.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each record as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(rec model.Record) error {
	return r.enc.Encode(rec)
}
