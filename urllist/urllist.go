// Package urllist loads the URLs a batch run processes.
package urllist

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultColumn is the CSV column read when none is configured.
const DefaultColumn = "url"

const maxLine = 1024 * 1024

// Load reads path as CSV when it has a .csv extension and as a
// line-oriented list otherwise.
func Load(path, column string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadCSV(path, column)
	}
	return LoadText(path)
}

// LoadText reads one URL per line. Blank lines and lines starting with #
// are skipped.
func LoadText(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer file.Close()

	urls, err := ReadText(file)
	if err != nil {
		return nil, fmt.Errorf("read url list %q: %w", path, err)
	}
	slog.Info("loaded urls", slog.String("path", path), slog.Int("count", len(urls)))
	return urls, nil
}

// ReadText is LoadText over an arbitrary reader.
func ReadText(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	urls := []string{}
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

// LoadCSV reads the named column from a CSV file with a header row. Rows
// without the column or with an empty value are skipped.
func LoadCSV(path, column string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer file.Close()

	urls, err := ReadCSV(file, column)
	if err != nil {
		return nil, fmt.Errorf("read url list %q: %w", path, err)
	}
	slog.Info("loaded urls",
		slog.String("path", path),
		slog.String("column", column),
		slog.Int("count", len(urls)),
	)
	return urls, nil
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultColumn
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := slices.IndexFunc(header, func(h string) bool {
		return strings.TrimSpace(h) == column
	})
	if idx < 0 {
		slog.Warn("url column not found in csv header",
			slog.String("column", column),
			slog.Any("header", header),
		)
		return []string{}, nil
	}

	urls := []string{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if idx >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[idx]); value != "" {
			urls = append(urls, value)
		}
	}
	return urls, nil
}
