package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AnalyzePath is the Analysis Service endpoint that scores a batch file.
const AnalyzePath = "/analyze"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

var tracer = otel.Tracer("kestrel-ingest")

// Analyzer scores a batch file. Client is the HTTP implementation.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, content io.Reader) (*domain.AnalysisResponse, error)
}

// Client talks to the Analysis Service over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates an Analysis Service client.
func NewClient(cfg domain.AnalysisConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Analyze uploads a batch file and decodes the scored response.
// Transport failures, non-2xx statuses and undecodable bodies are returned as
// *domain.TransportError. A decoded response carrying an error is returned
// as-is; the Adapter reports it.
func (c *Client) Analyze(ctx context.Context, filename string, content io.Reader) (*domain.AnalysisResponse, error) {
	ctx, span := tracer.Start(ctx, "analysis.analyze",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("batch.filename", filename),
			attribute.String("analysis.url", c.baseURL+AnalyzePath),
		),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.analyze(ctx, filename, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("analysis.results", len(resp.Results)))
	return resp, nil
}

func (c *Client) analyze(ctx context.Context, filename string, content io.Reader) (*domain.AnalysisResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, &domain.TransportError{Op: "encode", Err: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, &domain.TransportError{Op: "encode", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &domain.TransportError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, body)
	if err != nil {
		return nil, &domain.TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "post", Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: "read", Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Op:  "post",
			Err: fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, statusDetail(raw)),
		}
	}

	return DecodeResponse(raw)
}

// DecodeResponse parses a raw Analysis Service body.
func DecodeResponse(raw []byte) (*domain.AnalysisResponse, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &domain.TransportError{Op: "decode", Err: errors.New("empty body")}
	}
	var resp domain.AnalysisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Op: "decode", Err: err}
	}
	return &resp, nil
}

// statusDetail pulls a readable message out of an error body.
func statusDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
