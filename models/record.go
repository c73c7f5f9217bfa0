// Package models defines data structures shared by the scraper stages.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExtractionMode selects which extraction operations run for a URL.
type ExtractionMode int

const (
	ModeAll ExtractionMode = iota
	ModeTextOnly
	ModeLinksOnly
	ModeImagesOnly
)

var modeNames = map[ExtractionMode]string{
	ModeAll:        "all",
	ModeTextOnly:   "text",
	ModeLinksOnly:  "links",
	ModeImagesOnly: "images",
}

// ParseMode converts a CLI value (all, text, links, images) to an ExtractionMode.
func ParseMode(s string) (ExtractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return ModeAll, nil
	case "text", "text-only":
		return ModeTextOnly, nil
	case "links", "links-only":
		return ModeLinksOnly, nil
	case "images", "images-only":
		return ModeImagesOnly, nil
	default:
		return ModeAll, fmt.Errorf("unknown extraction mode %q", s)
	}
}

func (m ExtractionMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is one of the declared modes.
func (m ExtractionMode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// WantsText reports whether text extraction runs under m.
func (m ExtractionMode) WantsText() bool { return m == ModeAll || m == ModeTextOnly }

// WantsLinks reports whether link extraction runs under m.
func (m ExtractionMode) WantsLinks() bool { return m == ModeAll || m == ModeLinksOnly }

// WantsImages reports whether image extraction runs under m.
func (m ExtractionMode) WantsImages() bool { return m == ModeAll || m == ModeImagesOnly }

// Status is the outcome of processing one URL.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrorKind is the coarse category of a failed record. ErrorType refines it.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindHTTPStatus   ErrorKind = "http_status"
	KindParse        ErrorKind = "parse"
	KindPrecondition ErrorKind = "precondition"
)

// Page is the content of a successful fetch.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// ResultRecord is the outcome of processing a single URL.
//
// Optional payload fields are nil when the extraction mode did not run the
// corresponding operation. LinkCount and ImageCount always equal the length of
// Links and Images when set.
type ResultRecord struct {
	URL       string
	Status    Status
	Timestamp time.Time
	Error     string
	ErrorType string
	ErrorKind ErrorKind

	Text       *string
	Links      []string
	LinkCount  *int
	Images     []string
	ImageCount *int
}

// NewFailedRecord builds a Failed record for url.
func NewFailedRecord(url, reason, errorType string, kind ErrorKind, at time.Time) *ResultRecord {
	if reason == "" {
		reason = "unknown error"
	}
	return &ResultRecord{
		URL:       url,
		Status:    StatusFailed,
		Timestamp: at,
		Error:     reason,
		ErrorType: errorType,
		ErrorKind: kind,
	}
}

// SetText stores the extracted text.
func (r *ResultRecord) SetText(text string) {
	r.Text = &text
}

// SetLinks stores the extracted links and their count.
func (r *ResultRecord) SetLinks(links []string) {
	if links == nil {
		links = []string{}
	}
	n := len(links)
	r.Links = links
	r.LinkCount = &n
}

// SetImages stores the extracted image URLs and their count.
func (r *ResultRecord) SetImages(images []string) {
	if images == nil {
		images = []string{}
	}
	n := len(images)
	r.Images = images
	r.ImageCount = &n
}

// Succeeded reports whether the record is a Success.
func (r *ResultRecord) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

type recordJSON struct {
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Text       *string   `json:"text,omitempty"`
	Links      *[]string `json:"links,omitempty"`
	LinkCount  *int      `json:"link_count,omitempty"`
	Images     *[]string `json:"images,omitempty"`
	ImageCount *int      `json:"image_count,omitempty"`
}

// MarshalJSON emits only the fields present for the record's mode. An empty
// link or image set that was extracted is still emitted as [].
func (r ResultRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		URL:        r.URL,
		Status:     r.Status,
		Timestamp:  r.Timestamp,
		Error:      r.Error,
		ErrorType:  r.ErrorType,
		ErrorKind:  r.ErrorKind,
		Text:       r.Text,
		LinkCount:  r.LinkCount,
		ImageCount: r.ImageCount,
	}
	if r.LinkCount != nil {
		links := r.Links
		if links == nil {
			links = []string{}
		}
		out.Links = &links
	}
	if r.ImageCount != nil {
		images := r.Images
		if images == nil {
			images = []string{}
		}
		out.Images = &images
	}
	return json.Marshal(out)
}

// RecordFields lists every column a record can produce, in output order.
var RecordFields = []string{
	"url", "status", "timestamp", "error", "error_type", "error_kind",
	"text", "links", "link_count", "images", "image_count",
}

// Fields returns the record's present fields as ordered key/value pairs with
// string values, suitable for tabular output. List values are joined with a
// single space.
func (r *ResultRecord) Fields() ([]string, map[string]string) {
	keys := make([]string, 0, len(RecordFields))
	values := make(map[string]string, len(RecordFields))
	add := func(k, v string) {
		keys = append(keys, k)
		values[k] = v
	}

	add("url", r.URL)
	add("status", string(r.Status))
	add("timestamp", r.Timestamp.Format(time.RFC3339))
	if r.Status == StatusFailed {
		add("error", r.Error)
		if r.ErrorType != "" {
			add("error_type", r.ErrorType)
		}
		if r.ErrorKind != "" {
			add("error_kind", string(r.ErrorKind))
		}
	}
	if r.Text != nil {
		add("text", *r.Text)
	}
	if r.LinkCount != nil {
		add("links", strings.Join(r.Links, " "))
		add("link_count", strconv.Itoa(*r.LinkCount))
	}
	if r.ImageCount != nil {
		add("images", strings.Join(r.Images, " "))
		add("image_count", strconv.Itoa(*r.ImageCount))
	}
	return keys, values
}

// Columns returns every column a record produced under mode can carry, in
// RecordFields order.
func Columns(mode ExtractionMode) []string {
	cols := []string{"url", "status", "timestamp", "error", "error_type", "error_kind"}
	if mode.WantsText() {
		cols = append(cols, "text")
	}
	if mode.WantsLinks() {
		cols = append(cols, "links", "link_count")
	}
	if mode.WantsImages() {
		cols = append(cols, "images", "image_count")
	}
	return cols
}
