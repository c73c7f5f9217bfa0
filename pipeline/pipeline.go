package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-pages/extract"
	"github.com/aluiziolira/go-scrape-pages/models"
	"github.com/aluiziolira/go-scrape-pages/parser"
	"github.com/aluiziolira/go-scrape-pages/scraper"
	"github.com/google/uuid"
)

var (
	// ErrInvalidDelay is returned when Run is called with a negative delay.
	ErrInvalidDelay = errors.New("pipeline: delay cannot be negative")
	// ErrInvalidMode is returned when Run is called with an undeclared mode.
	ErrInvalidMode = errors.New("pipeline: unknown extraction mode")
)

// Fetcher retrieves the content of a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.Page, error)
}

// Parser turns fetched content into a queryable document.
type Parser interface {
	Parse(content []byte, contentType string) (parser.Document, error)
}

// Sink receives finalized records in input order while a run progresses.
type Sink interface {
	Write(records []*models.ResultRecord) error
}

// Runner drives fetch, parse and extraction for an ordered list of URLs.
type Runner struct {
	fetcher   Fetcher
	parser    Parser
	extractor *extract.Extractor

	progress io.Writer
	progMu   sync.Mutex
	metrics  *scraper.Metrics
	sink     Sink
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
	workers  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress directs human-readable progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.progress = w
		}
	}
}

// WithMetrics records per-record outcomes on m.
func WithMetrics(m *scraper.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSink streams each finalized record to s.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithSleep replaces the inter-request wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithWorkers allows up to n hosts to be processed at the same time.
// Requests to a single host are always sequential.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewRunner builds a runner. A nil extractor gets a fresh one.
func NewRunner(fetcher Fetcher, p Parser, extractor *extract.Extractor, opts ...Option) *Runner {
	if extractor == nil {
		extractor = extract.New()
	}
	r := &Runner{
		fetcher:   fetcher,
		parser:    p,
		extractor: extractor,
		progress:  io.Discard,
		sleep:     sleepContext,
		now:       time.Now,
		workers:   1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes urls in order and returns one record per processed URL.
//
// Per-URL failures become Failed records. Only invalid arguments abort the
// run. When ctx is cancelled the records gathered so far are returned with
// Cancelled set. A sink failure stops streaming and is returned alongside
// the complete report.
func (r *Runner) Run(ctx context.Context, urls []string, mode models.ExtractionMode, delay time.Duration) (*models.BatchReport, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDelay, delay)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	report := models.NewBatchReport(uuid.NewString(), mode, r.now())
	out := newOrderedSink(r.sink, len(urls))

	slog.Info("batch started",
		slog.String("run_id", report.RunID),
		slog.Int("urls", len(urls)),
		slog.String("mode", mode.String()),
		slog.Duration("delay", delay),
		slog.Int("workers", r.workers),
	)

	var records []*models.ResultRecord
	if r.workers > 1 && len(urls) > 1 {
		records, report.Cancelled = r.runConcurrent(ctx, urls, mode, delay, out)
	} else {
		records, report.Cancelled = r.runSequential(ctx, urls, mode, delay, out)
	}
	for _, rec := range records {
		report.Append(rec)
	}
	out.drain()
	report.FinishedAt = r.now()

	r.progressf("Batch processing completed. %d successful, %d failed.\n", report.Successes(), report.Failures())
	slog.Info("batch finished",
		slog.String("run_id", report.RunID),
		slog.Int("successes", report.Successes()),
		slog.Int("failures", report.Failures()),
		slog.Bool("cancelled", report.Cancelled),
		slog.Duration("duration", report.Duration()),
	)

	if err := out.Err(); err != nil {
		return report, fmt.Errorf("stream records: %w", err)
	}
	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, urls []string, mode models.ExtractionMode, delay time.Duration, out *orderedSink) ([]*models.ResultRecord, bool) {
	n := len(urls)
	records := make([]*models.ResultRecord, 0, n)
	for i, u := range urls {
		if ctx.Err() != nil {
			return records, true
		}
		r.progressf("[%d/%d] processing %s\n", i+1, n, u)

		rec := r.process(ctx, u, mode)
		records = append(records, rec)
		out.put(i, rec)

		if i < n-1 {
			if err := r.sleep(ctx, delay); err != nil {
				return records, true
			}
		}
	}
	return records, false
}

func (r *Runner) runConcurrent(ctx context.Context, urls []string, mode models.ExtractionMode, delay time.Duration, out *orderedSink) ([]*models.ResultRecord, bool) {
	n := len(urls)
	slots := make([]*models.ResultRecord, n)
	sem := make(chan struct{}, r.workers)

	var (
		wg        sync.WaitGroup
		cancelled atomic.Bool
	)
	for _, group := range groupByHost(urls) {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				cancelled.Store(true)
				return
			}
			defer func() { <-sem }()

			for j, i := range indices {
				if ctx.Err() != nil {
					cancelled.Store(true)
					return
				}
				r.progressf("[%d/%d] processing %s\n", i+1, n, urls[i])

				rec := r.process(ctx, urls[i], mode)
				slots[i] = rec
				out.put(i, rec)

				if j < len(indices)-1 {
					if err := r.sleep(ctx, delay); err != nil {
						cancelled.Store(true)
						return
					}
				}
			}
		}(group)
	}
	wg.Wait()

	records := make([]*models.ResultRecord, 0, n)
	for _, rec := range slots {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, cancelled.Load() || len(records) < n
}

func (r *Runner) process(ctx context.Context, rawURL string, mode models.ExtractionMode) *models.ResultRecord {
	page, err := r.fetcher.Fetch(ctx, rawURL)
	if err == nil && page == nil {
		err = fmt.Errorf("no content returned for %s", rawURL)
	}
	if err != nil {
		return r.fail(rawURL, err, scraper.ErrorType(err), scraper.Kind(err))
	}

	doc, err := r.parser.Parse(page.Body, page.ContentType)
	if err != nil {
		r.metrics.IncError("parse")
		return r.fail(rawURL, err, "parse", models.KindParse)
	}

	rec := &models.ResultRecord{URL: rawURL, Status: models.StatusSuccess}
	if mode.WantsText() {
		rec.SetText(r.extractor.Text(doc))
	}
	if mode.WantsLinks() {
		rec.SetLinks(r.extractor.Links(doc, rawURL))
	}
	if mode.WantsImages() {
		rec.SetImages(r.extractor.Images(doc, rawURL))
	}
	rec.Timestamp = r.now()

	r.metrics.IncRecord(string(rec.Status))
	slog.Debug("url processed", slog.String("url", rawURL), slog.String("status", string(rec.Status)))
	return rec
}

func (r *Runner) fail(rawURL string, err error, errorType string, kind models.ErrorKind) *models.ResultRecord {
	r.metrics.IncRecord(string(models.StatusFailed))
	slog.Warn("url failed",
		slog.String("url", rawURL),
		slog.String("error_type", errorType),
		slog.String("error_kind", string(kind)),
		slog.Any("error", err),
	)
	return models.NewFailedRecord(rawURL, err.Error(), errorType, kind, r.now())
}

func (r *Runner) progressf(format string, args ...any) {
	r.progMu.Lock()
	defer r.progMu.Unlock()
	fmt.Fprintf(r.progress, format, args...)
}

// groupByHost partitions URL indices by host name, keeping first-appearance
// order of hosts and input order within each host. Ports are ignored, so an
// explicit default port and different ports on one machine share a group.
func groupByHost(urls []string) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, raw := range urls {
		key := ""
		if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
			key = strings.ToLower(u.Hostname())
		}
		g, ok := pos[key]
		if !ok {
			g = len(groups)
			pos[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
