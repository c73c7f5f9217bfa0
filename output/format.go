// Package output persists scrape results as JSON, JSONL, CSV or plain text.
package output

import (
	"fmt"
	"strings"
)

// Format selects a serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatText  Format = "txt"
	FormatDual  Format = "dual"
)

// ParseFormat validates a format name. "text" is accepted for txt.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatJSONL, FormatCSV, FormatText, FormatDual:
		return f, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Streamable reports whether records can be written as they complete.
func (f Format) Streamable() bool {
	return f == FormatJSONL || f == FormatCSV || f == FormatDual
}
