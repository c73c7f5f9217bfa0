package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-pages/config"
	"github.com/aluiziolira/go-scrape-pages/models"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestFetcher(t *testing.T, cfg *config.Config, opts ...Option) (*Fetcher, *httpmock.MockTransport, *[]time.Duration) {
	t.Helper()

	f, err := NewFetcher(cfg, NewMetrics(), opts...)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.collector.WithTransport(transport)

	var mu sync.Mutex
	waits := []time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return f, transport, &waits
}

func htmlResponder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		resp.Request = req
		return resp, nil
	}
}

func TestFetchSuccess(t *testing.T) {
	f, transport, _ := newTestFetcher(t, config.DefaultConfig())
	transport.RegisterResponder(http.MethodGet, "http://example.test/page",
		htmlResponder(http.StatusOK, "<html><body><p>hi</p></body></html>"))

	page, err := f.Fetch(context.Background(), "http://example.test/page")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", page.StatusCode)
	}
	if page.URL != "http://example.test/page" {
		t.Fatalf("url = %q", page.URL)
	}
	if got := string(page.Body); got != "<html><body><p>hi</p></body></html>" {
		t.Fatalf("body = %q", got)
	}
	if page.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", page.ContentType)
	}
	if got := testutil.ToFloat64(f.Metrics.RequestsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Fatalf("succeeded requests = %v, want 1", got)
	}
}

func TestFetchHTTPStatusNotRetried(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusGone, expected: "http_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			f, transport, waits := newTestFetcher(t, config.DefaultConfig())
			transport.RegisterResponder(http.MethodGet, "http://example.test/missing",
				htmlResponder(tt.status, "nope"))

			_, err := f.Fetch(context.Background(), "http://example.test/missing")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			var statusErr ErrHTTPStatus
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
				t.Fatalf("err = %v, want ErrHTTPStatus(%d)", err, tt.status)
			}
			if got := ErrorType(err); got != tt.expected {
				t.Fatalf("ErrorType = %q, want %q", got, tt.expected)
			}
			if Kind(err) != models.KindHTTPStatus {
				t.Fatalf("Kind = %q, want http_status", Kind(err))
			}
			if calls := transport.GetTotalCallCount(); calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
			if len(*waits) != 0 {
				t.Fatalf("unexpected backoff waits %v", *waits)
			}
		})
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 3
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryBackoffMax = time.Second
	f, transport, waits := newTestFetcher(t, cfg)

	var mu sync.Mutex
	calls := 0
	transport.RegisterResponder(http.MethodGet, "http://example.test/flaky", func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return htmlResponder(http.StatusServiceUnavailable, "busy")(req)
		}
		return htmlResponder(http.StatusOK, "<p>ok</p>")(req)
	})

	page, err := f.Fetch(context.Background(), "http://example.test/flaky")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", page.StatusCode)
	}
	if got := testutil.ToFloat64(f.Metrics.RetriesTotal); got != 2 {
		t.Fatalf("retries = %v, want 2", got)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("waits = %v, want %v", *waits, want)
		}
	}
}

func TestFetchConnectionErrorExhaustsRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	f, transport, _ := newTestFetcher(t, cfg)
	transport.RegisterResponder(http.MethodGet, "http://example.test/down",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := f.Fetch(context.Background(), "http://example.test/down")
	if err == nil {
		t.Fatalf("expected connection error")
	}
	if got := ErrorType(err); got != "connection" {
		t.Fatalf("ErrorType = %q, want connection (err=%v)", got, err)
	}
	if Kind(err) != models.KindNetwork {
		t.Fatalf("Kind = %q, want network", Kind(err))
	}
	if calls := transport.GetTotalCallCount(); calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestFetchRetryStopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 5
	f, transport, _ := newTestFetcher(t, cfg)
	transport.RegisterResponder(http.MethodGet, "http://example.test/busy",
		htmlResponder(http.StatusServiceUnavailable, "busy"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://example.test/busy")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls := transport.GetTotalCallCount(); calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	f, transport, _ := newTestFetcher(t, config.DefaultConfig())

	for _, raw := range []string{"", "   ", "ftp://example.test/file", "not a url", "http://", "mailto:someone@example.test"} {
		t.Run(raw, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), raw)
			var invalid ErrInvalidURL
			if !errors.As(err, &invalid) {
				t.Fatalf("Fetch(%q) err = %v, want ErrInvalidURL", raw, err)
			}
			if ErrorType(err) != "invalid_url" {
				t.Fatalf("ErrorType = %q", ErrorType(err))
			}
			if Kind(err) != models.KindPrecondition {
				t.Fatalf("Kind = %q, want precondition", Kind(err))
			}
		})
	}
	if calls := transport.GetTotalCallCount(); calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	f, transport, _ := newTestFetcher(t, config.DefaultConfig())
	transport.RegisterResponder(http.MethodGet, "http://example.test/again",
		htmlResponder(http.StatusOK, "<p>again</p>"))

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), "http://example.test/again"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if calls := transport.GetTotalCallCount(); calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestFetchRotatesUserAgents(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UserAgents = []string{"agent-a", "agent-b"}
	f, transport, _ := newTestFetcher(t, cfg)

	var mu sync.Mutex
	var seen []string
	transport.RegisterResponder(http.MethodGet, "http://example.test/ua", func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		seen = append(seen, req.Header.Get("User-Agent"))
		mu.Unlock()
		if req.Header.Get("Accept-Language") == "" {
			t.Errorf("default headers not sent")
		}
		return htmlResponder(http.StatusOK, "ok")(req)
	})

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), "http://example.test/ua"); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	want := []string{"agent-a", "agent-b", "agent-a"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("user agents = %v, want %v", seen, want)
	}
}

func TestNewFetcherRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFetcher(nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	cfg := config.DefaultConfig()
	cfg.Timeout = 0
	if _, err := NewFetcher(cfg, nil); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	f, err := NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 500 * time.Millisecond},
		{attempt: 8, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := f.backoff(tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "nowhere.test", IsNotFound: true}, statusCode: 0, expected: "dns"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http_status"},
		{name: "cancelled", err: context.Canceled, statusCode: 0, expected: "cancelled"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(classifyError(tt.err, tt.statusCode, "http://example.test/")); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: ErrTimeout{Err: context.DeadlineExceeded}, want: true},
		{name: "connection", err: ErrConnection{Err: errors.New("reset")}, want: true},
		{name: "dns", err: ErrDNS{Err: errors.New("no such host")}, want: false},
		{name: "rate limited", err: ErrHTTPStatus{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "unavailable", err: ErrHTTPStatus{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "not found", err: ErrHTTPStatus{StatusCode: http.StatusNotFound}, want: false},
		{name: "invalid url", err: ErrInvalidURL{URL: "x", Reason: "bad"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(fmt.Errorf("wrapped: %w", tt.err)); got != tt.want {
				t.Fatalf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRequestDelay(t *testing.T) {
	f, err := NewFetcher(config.DefaultConfig(), nil, WithRequestDelay(250*time.Millisecond))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	if f.requestDelay != 250*time.Millisecond {
		t.Fatalf("request delay = %v", f.requestDelay)
	}

	f, err = NewFetcher(config.DefaultConfig(), nil, WithRequestDelay(-time.Second))
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	if f.requestDelay != 0 {
		t.Fatalf("negative delay should be ignored, got %v", f.requestDelay)
	}
}

func TestRequestDelayOnlyBetweenAttempts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Second
	f, transport, waits := newTestFetcher(t, cfg, WithRequestDelay(time.Second))
	transport.RegisterResponder(http.MethodGet, "http://example.test/ok",
		htmlResponder(http.StatusOK, "<p>ok</p>"))

	start := time.Now()
	if _, err := f.Fetch(context.Background(), "http://example.test/ok"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Fatalf("single fetch took %v, want no trailing delay", elapsed)
	}
	if len(*waits) != 0 {
		t.Fatalf("waits = %v, want none", *waits)
	}

	transport.RegisterResponder(http.MethodGet, "http://example.test/flaky",
		htmlResponder(http.StatusServiceUnavailable, "busy"))
	if _, err := f.Fetch(context.Background(), "http://example.test/flaky"); err == nil {
		t.Fatalf("expected error")
	}
	want := []time.Duration{time.Second, time.Second}
	if !slices.Equal(*waits, want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
}
