package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-scrape-pages/models"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrDNS indicates the host name could not be resolved.
type ErrDNS struct {
	Err error
}

func (e ErrDNS) Error() string {
	return fmt.Errorf("dns: %w", e.Err).Error()
}

func (e ErrDNS) Unwrap() error {
	return e.Err
}

// ErrInvalidURL indicates a URL that cannot be requested.
type ErrInvalidURL struct {
	URL    string
	Reason string
}

func (e ErrInvalidURL) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Reason)
}

// ErrHTTPStatus indicates a response outside the 2xx range.
type ErrHTTPStatus struct {
	StatusCode int
	URL        string
}

func (e ErrHTTPStatus) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = "unexpected status"
	}
	return fmt.Sprintf("http status %d (%s) for %s", e.StatusCode, text, e.URL)
}

// ErrorType returns a stable label for err, used for metrics and records.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var dns ErrDNS
	if errors.As(err, &dns) {
		return "dns"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var invalid ErrInvalidURL
	if errors.As(err, &invalid) {
		return "invalid_url"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		default:
			return "http_status"
		}
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "other"
}

// Kind maps a fetch error onto the record's failure category.
func Kind(err error) models.ErrorKind {
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return models.KindHTTPStatus
	}
	var invalid ErrInvalidURL
	if errors.As(err, &invalid) {
		return models.KindPrecondition
	}
	return models.KindNetwork
}

// Transient reports whether a retry may succeed.
func Transient(err error) bool {
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func classifyError(err error, statusCode int, url string) error {
	if err == nil {
		if statusCode != 0 && (statusCode < 200 || statusCode > 299) {
			return ErrHTTPStatus{StatusCode: statusCode, URL: url}
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNS{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return err
}
