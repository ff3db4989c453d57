// Package feed reads the secondary REST visit feed. Every failure comes back
// as a typed error; nothing is retried.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/metrics"
)

const (
	visitsPath          = "/visits"
	defaultTimeout      = 15 * time.Second
	defaultLogBodyBytes = 256 * 1024
	errorBodyLimit      = 1024
)

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeHTTPStatus = "http_status"
	OutcomeDecode     = "decode"
	OutcomeTransport  = "transport"
)

var errBaseURLRequired = errors.New("visit feed base url is required")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("visit feed returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("visit feed returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client fetches visit transfer records from GET /visits.
type Client struct {
	http         *resty.Client
	logg         *logger.Logger
	metrics      *metrics.VisitMetrics
	logBodyBytes int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			// resty sets Timeout on the client it wraps; keep the caller's untouched.
			copied := *hc
			baseURL, timeout := c.http.BaseURL, c.http.GetClient().Timeout
			c.http = newResty(resty.NewWithClient(&copied), baseURL, timeout, c.logg)
		}
	}
}

// WithMetrics records request durations by outcome.
func WithMetrics(m *metrics.VisitMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds the feed client from configuration.
func NewClient(cfg config.VisitFeedConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logBodyBytes := int(cfg.LogBodyBytes)
	if logBodyBytes <= 0 {
		logBodyBytes = defaultLogBodyBytes
	}

	c := &Client{
		logg:         logg,
		logBodyBytes: logBodyBytes,
	}
	c.http = newResty(resty.New(), baseURL, timeout, logg)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func newResty(rc *resty.Client, baseURL string, timeout time.Duration, logg *logger.Logger) *resty.Client {
	return rc.
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logg: logg})
}

// FetchVisits returns the feed's visits. A success status with an empty or
// null body yields an empty list. Failures are *pkgerrors.Error values:
// CodeDependency wrapping *StatusError for non-2xx, CodeDecode for a
// malformed payload or a record with an unknown status, and CodeDependency
// for transport failures.
func (c *Client) FetchVisits(ctx context.Context) ([]visits.TransferRecord, error) {
	start := time.Now()
	records, err := c.fetch(ctx)
	c.metrics.ObserveFeedRequest(Outcome(err), time.Since(start))
	return records, err
}

func (c *Client) fetch(ctx context.Context) ([]visits.TransferRecord, error) {
	resp, err := c.http.R().SetContext(ctx).Get(visitsPath)
	if err != nil {
		c.logg.Error(ctx, "feed.request_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "visit feed request failed")
	}

	body := resp.Body()
	c.captureBody(ctx, resp.Request.URL, body)

	if !resp.IsSuccess() {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: truncate(body, errorBodyLimit)}
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"status": statusErr.StatusCode, "body": statusErr.Body}), "feed.request_rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, fmt.Sprintf("visit feed request failed with HTTP %d", statusErr.StatusCode)).
			WithDetails(map[string]any{"status": statusErr.StatusCode})
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		c.logg.Warn(ctx, "feed.empty_body")
		return []visits.TransferRecord{}, nil
	}

	var records []visits.TransferRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		c.logg.Error(ctx, "feed.malformed_response", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "malformed visit feed response")
	}
	if records == nil {
		records = []visits.TransferRecord{}
	}
	for _, record := range records {
		if _, err := enums.ParseVisitStatus(record.Status); err != nil {
			c.logg.Error(c.logg.WithVisitID(ctx, record.ID), "feed.invalid_status", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "malformed visit feed record").
				WithDetails(map[string]any{"id": record.ID, "status": record.Status})
		}
	}
	return records, nil
}

// captureBody logs a bounded prefix of the raw response for diagnostics.
// It never fails the request.
func (c *Client) captureBody(ctx context.Context, url string, body []byte) {
	if !c.logg.DebugEnabled(ctx) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logg.Warn(c.logg.WithField(ctx, "panic", fmt.Sprint(r)), "feed.body_capture_failed")
		}
	}()
	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
		"url":   url,
		"bytes": len(body),
		"body":  truncate(body, c.logBodyBytes),
	}), "feed.raw_response")
}

// Outcome labels a FetchVisits result for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return OutcomeHTTPStatus
	case pkgerrors.CodeOf(err) == pkgerrors.CodeDecode:
		return OutcomeDecode
	default:
		return OutcomeTransport
	}
}

// truncate cuts body to at most limit bytes without splitting a UTF-8
// sequence.
func truncate(body []byte, limit int) string {
	if limit <= 0 || len(body) <= limit {
		return string(body)
	}
	n := limit
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return string(body[:n])
}

type restyLogger struct {
	logg *logger.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logg.Error(context.Background(), fmt.Sprintf(format, v...), nil)
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logg.Warn(context.Background(), fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logg.Debug(context.Background(), fmt.Sprintf(format, v...))
}
