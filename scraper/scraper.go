package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-pages/config"
	"github.com/aluiziolira/go-scrape-pages/models"
	"github.com/gocolly/colly/v2"
)

const (
	ctxStart    = "start"
	ctxResponse = "response"
)

// Fetcher performs bounded-latency HTTP GETs through a colly collector.
// It is safe for concurrent use.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	agents       uint64
	requestDelay time.Duration
	sleep        func(context.Context, time.Duration) error
}

// Option adjusts a Fetcher.
type Option func(*Fetcher)

// WithRequestDelay sets the minimum wait before a retry, so repeated attempts
// at one URL are at least d apart. A fetch that needs no retry never waits.
func WithRequestDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.requestDelay = d
		}
	}
}

// NewFetcher builds a fetcher configured from cfg. metrics may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.Clone()

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
		colly.MaxBodySize(cfg.MaxBodySize),
		colly.UserAgent(cfg.UserAgents[0]),
	)

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Workers,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f.configureHandlers()
	return f, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		f.Metrics.IncRequest("started")
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxResponse, r)
		f.observe(r.Ctx)
		if r.StatusCode >= http.StatusBadRequest {
			slog.Debug("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			f.observe(r.Ctx)
		}
	})
}

func (f *Fetcher) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny(ctxStart).(time.Time); ok {
		f.Metrics.ObserveDuration(time.Since(start))
	}
}

// Fetch retrieves rawURL. Network failures, DNS failures and non-2xx
// statuses are returned as typed errors; transient failures are retried up
// to the configured limit before the last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.Page, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateURL(rawURL); err != nil {
		f.Metrics.IncError(ErrorType(err))
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		page, err := f.fetchOnce(rawURL)
		if err == nil {
			f.Metrics.IncRequest("succeeded")
			return page, nil
		}

		label := ErrorType(err)
		f.Metrics.IncError(label)
		if attempt >= f.cfg.MaxRetries || !Transient(err) {
			f.Metrics.IncRequest("failed")
			return nil, err
		}

		delay := f.backoff(attempt + 1)
		f.Metrics.IncRetries()
		slog.Debug("retrying fetch",
			slog.String("url", rawURL),
			slog.String("category", label),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
		)
		if serr := f.sleep(ctx, delay); serr != nil {
			f.Metrics.IncRequest("failed")
			return nil, err
		}
	}
}

func (f *Fetcher) fetchOnce(rawURL string) (*models.Page, error) {
	cctx := colly.NewContext()
	hdr := f.cfg.Header()
	hdr.Set("User-Agent", f.nextUserAgent())

	if err := f.collector.Request(http.MethodGet, rawURL, nil, cctx, hdr); err != nil {
		return nil, classifyError(err, 0, rawURL)
	}

	resp, ok := cctx.GetAny(ctxResponse).(*colly.Response)
	if !ok || resp == nil {
		return nil, fmt.Errorf("no response received for %s", rawURL)
	}
	if err := classifyError(nil, resp.StatusCode, rawURL); err != nil {
		return nil, err
	}

	return &models.Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

func (f *Fetcher) nextUserAgent() string {
	n := atomic.AddUint64(&f.agents, 1) - 1
	return f.cfg.UserAgents[n%uint64(len(f.cfg.UserAgents))]
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	if delay < f.requestDelay {
		delay = f.requestDelay
	}
	return delay
}

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrInvalidURL{URL: rawURL, Reason: "empty"}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL{URL: rawURL, Reason: err.Error()}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURL{URL: rawURL, Reason: "unsupported scheme"}
	}
	if u.Host == "" {
		return ErrInvalidURL{URL: rawURL, Reason: "missing host"}
	}
	return nil
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
