package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-pages/models"
)

// ErrNoRecords is returned when a report with no records is saved.
var ErrNoRecords = errors.New("no results to save")

const (
	timestampLayout = "20060102_150405"
	previewRunes    = 200
	separator       = "--------------------------------------------------"
)

// Manager writes output files below a single directory.
type Manager struct {
	Dir string
	now func() time.Time
}

// NewManager returns a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %q: %w", dir, err)
	}
	return &Manager{Dir: dir, now: time.Now}, nil
}

// DefaultName returns prefix_YYYYMMDD_HHMMSS with ext appended when non-empty.
func (m *Manager) DefaultName(prefix, ext string) string {
	name := prefix + "_" + m.now().Format(timestampLayout)
	if ext != "" {
		name += "." + ext
	}
	return name
}

func (m *Manager) path(name, ext string) string {
	if name == "" {
		name = m.DefaultName("scraped_data", ext)
	}
	return filepath.Join(m.Dir, name)
}

// SaveJSON writes v as indented JSON with HTML characters and non-ASCII
// text left unescaped. An empty name gets a timestamped default.
func (m *Manager) SaveJSON(v any, name string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return m.write(m.path(name, "json"), buf.Bytes())
}

// SaveCSV writes items as CSV rows. *Row items contribute their keys;
// anything else is written under a single data column. The header is
// fieldnames when given and otherwise the first item's keys.
func (m *Manager) SaveCSV(items []any, name string, fieldnames []string) (string, error) {
	path := m.path(name, "csv")
	if len(items) == 0 {
		return m.write(path, nil)
	}

	header := fieldnames
	if len(header) == 0 {
		if row, ok := items[0].(*Row); ok {
			header = row.Keys()
		} else {
			header = []string{"data"}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, item := range items {
		row, ok := item.(*Row)
		if !ok {
			row = NewRow("data", fmt.Sprint(item))
		}
		if err := w.Write(project(row, header)); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return m.write(path, buf.Bytes())
}

// SaveText writes a []string one element per line, and anything else
// verbatim.
func (m *Manager) SaveText(v any, name string) (string, error) {
	var buf bytes.Buffer
	switch data := v.(type) {
	case []string:
		for _, line := range data {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	case string:
		buf.WriteString(data)
	default:
		fmt.Fprint(&buf, data)
	}
	return m.write(m.path(name, "txt"), buf.Bytes())
}

// SaveReport serializes a batch report. name is a base name without
// extension; an empty name gets batch_results_<timestamp>. It returns the
// paths written.
func (m *Manager) SaveReport(report *models.BatchReport, format Format, name string) ([]string, error) {
	if report.Len() == 0 {
		return nil, ErrNoRecords
	}
	if name == "" {
		name = m.DefaultName("batch_results", "")
	}

	switch format {
	case FormatJSON:
		path, err := m.SaveJSON(report.Records, name+".json")
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatText:
		path, err := m.SaveText(ReportText(report), name+".txt")
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatJSONL, FormatCSV, FormatDual:
		w, paths, err := m.OpenReport(format, name, ReportColumns(report))
		if err != nil {
			return nil, err
		}
		if err := w.Write(report.Records); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// OpenReport creates a streaming writer for a streamable format. header
// is the CSV column set.
func (m *Manager) OpenReport(format Format, name string, header []string) (OutputWriter, []string, error) {
	if name == "" {
		name = m.DefaultName("batch_results", "")
	}
	base := filepath.Join(m.Dir, name)

	switch format {
	case FormatJSONL:
		w, err := NewJSONLWriter(base + ".jsonl")
		if err != nil {
			return nil, nil, err
		}
		return w, []string{w.Path()}, nil
	case FormatCSV:
		w, err := NewCSVWriter(base+".csv", header)
		if err != nil {
			return nil, nil, err
		}
		return w, []string{w.Path()}, nil
	case FormatDual:
		w, err := NewDualWriter(base+".csv", base+".jsonl", header)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Paths(), nil
	default:
		return nil, nil, fmt.Errorf("format %q cannot be streamed", format)
	}
}

// Remove deletes previously written files, ignoring ones already gone.
func (m *Manager) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReportColumns returns the union of the fields present in the report's
// records, in canonical order.
func ReportColumns(report *models.BatchReport) []string {
	present := make(map[string]bool, len(models.RecordFields))
	for _, rec := range report.Records {
		keys, _ := rec.Fields()
		for _, k := range keys {
			present[k] = true
		}
	}
	cols := make([]string, 0, len(present))
	for _, k := range models.RecordFields {
		if present[k] {
			cols = append(cols, k)
		}
	}
	return cols
}

// ReportText renders one block per record: URL, status, a text preview and
// link count for successes or the error for failures, then a separator.
func ReportText(report *models.BatchReport) string {
	lines := make([]string, 0, report.Len()*5)
	for _, rec := range report.Records {
		lines = append(lines, "URL: "+rec.URL, "Status: "+string(rec.Status))
		if rec.Succeeded() {
			if rec.Text != nil {
				lines = append(lines, "Text: "+truncate(*rec.Text, previewRunes)+"...")
			}
			if rec.LinkCount != nil {
				lines = append(lines, "Links: "+strconv.Itoa(*rec.LinkCount))
			}
		} else {
			reason := rec.Error
			if reason == "" {
				reason = "Unknown"
			}
			lines = append(lines, "Error: "+reason)
		}
		lines = append(lines, separator)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (m *Manager) write(path string, data []byte) (string, error) {
	if err := ensureDir(path); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
