package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	REGISTER_PATH     = "/register/"
	PARTICIPANTS_PATH = "/participants/"
	EXPORT_PATH       = "/participants/export/"
	STATS_PATH        = "/participants/stats/"
	REPRINT_PATH      = "/participants/reprint/"

	DEFAULT_TIMEOUT     = 90 * time.Second
	DEFAULT_CSV_NAME    = "participantes.csv"
	DEFAULT_REPRINT_PDF = "credencial.pdf"

	tracerName = "github.com/Geniuskaa/maraton_registration/pkg/api"
)

var ErrEmptyQuery = errors.New("empty reprint query")

// StatusError is a non-success answer from the backend. Body holds the raw
// response text.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend answered %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend answered %d: %s", e.Op, e.Status, e.Body)
}

// Observer receives the duration of every backend call.
type Observer interface {
	ObserveBackend(endpoint, outcome string, d time.Duration)
}

type Client struct {
	base     string
	http     *http.Client
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	timeout  atomic.Int64
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func NewClient(base string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{},
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	c.timeout.Store(int64(timeout))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Base() string {
	return c.base
}

func (c *Client) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// SetTimeout changes the per-request deadline for calls started afterwards.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.timeout.Store(int64(d))
	c.logger.Info("Backend timeout changed", zap.Duration("timeout", d))
}

// Register posts the payload as JSON and decodes the answer once. It never
// returns an error: transport failures come back as *TransportError.
func (c *Client) Register(ctx context.Context, payload any) Result {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "api.Register")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		// Not a transport problem, but there is nothing to send either.
		res := &TransportError{Kind: TransportNetwork, Err: fmt.Errorf("json.Marshal failed: %w", err)}
		c.finish(span, "register", res, start)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+REGISTER_PATH, bytes.NewReader(body))
	if err != nil {
		res := &TransportError{Kind: TransportNetwork, Err: fmt.Errorf("http.NewRequest failed: %w", err)}
		c.finish(span, "register", res, start)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", PDF_CONTENT_TYPE+", application/json;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		res := ClassifyTransport(err)
		c.finish(span, "register", res, start)
		return res
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	res := classifyResponse(resp)
	if badge, ok := res.(Badge); ok {
		badge.Filename = FilenameFromDisposition(resp.Header.Get("Content-Disposition"), DEFAULT_REPRINT_PDF)
		res = badge
	}
	c.finish(span, "register", res, start)
	return res
}

func (c *Client) finish(span trace.Span, endpoint string, res Result, start time.Time) {
	kind := Kind(res)
	span.SetAttributes(attribute.String("result.kind", kind))
	if te, ok := res.(*TransportError); ok {
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Error())
		c.logger.Warn("Backend call failed", zap.String("endpoint", endpoint), zap.Error(te))
	}
	if c.observer != nil {
		c.observer.ObserveBackend(endpoint, kind, time.Since(start))
	}
}

// ListParticipants fetches the whole participant list.
func (c *Client) ListParticipants(ctx context.Context) ([]ParticipantRecord, error) {
	var rows []ParticipantRecord
	if err := c.getJSON(ctx, "participants", PARTICIPANTS_PATH, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ParticipantRecord{}
	}
	return rows, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := c.getJSON(ctx, "stats", STATS_PATH, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ExportCSV downloads the CSV export. The name comes from the
// Content-Disposition header when the backend sends a usable one.
func (c *Client) ExportCSV(ctx context.Context) (*File, error) {
	return c.getFile(ctx, "export", EXPORT_PATH, DEFAULT_CSV_NAME)
}

// ReprintURL is the backend address of the badge for a folio or numeric id.
func (c *Client) ReprintURL(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return c.base + REPRINT_PATH + "?q=" + url.QueryEscape(q), nil
}

// Reprint downloads the badge that ReprintURL points to.
func (c *Client) Reprint(ctx context.Context, query string) (*File, error) {
	u, err := c.ReprintURL(query)
	if err != nil {
		return nil, err
	}
	return c.getFile(ctx, "reprint", strings.TrimPrefix(u, c.base), DEFAULT_REPRINT_PDF)
}

func (c *Client) get(ctx context.Context, endpoint, path string) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("http.NewRequest failed: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, ClassifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp, body, &StatusError{Op: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, dst any) (err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "api."+endpoint)
	defer func() { c.end(span, endpoint, start, err) }()

	_, body, err := c.get(ctx, endpoint, path)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%s: json.Unmarshal failed: %w", endpoint, err)
	}
	return nil
}

func (c *Client) getFile(ctx context.Context, endpoint, path, fallback string) (f *File, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "api."+endpoint)
	defer func() { c.end(span, endpoint, start, err) }()

	resp, body, err := c.get(ctx, endpoint, path)
	if err != nil {
		return nil, err
	}

	return &File{
		Name:        FilenameFromDisposition(resp.Header.Get("Content-Disposition"), fallback),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        body,
	}, nil
}

func (c *Client) end(span trace.Span, endpoint string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		var te *TransportError
		var se *StatusError
		switch {
		case errors.As(err, &te):
			outcome = te.Kind.String()
		case errors.As(err, &se):
			outcome = "status"
			span.SetAttributes(attribute.Int("http.status_code", se.Status))
		default:
			outcome = "decode"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Backend call failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	span.End()

	if c.observer != nil {
		c.observer.ObserveBackend(endpoint, outcome, time.Since(start))
	}
}
