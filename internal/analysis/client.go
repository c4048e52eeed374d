// Package analysis talks to the remote overlap-analysis API and tracks the
// state of the current upload.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/core/observability"
)

// FormField is the multipart field the analysis API reads the file from.
const FormField = "geojson"

// maxResponseBytes bounds the envelope we are willing to decode.
const maxResponseBytes = 256 << 20

type Checker interface {
	CheckOverlap(ctx context.Context, filename string, body io.Reader) ([]model.OverlapResult, error)
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
	startNow func() time.Time // for tests
}

func NewClient(logger *slog.Logger, client *http.Client, endpoint string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse analysis url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("analysis url %q must be absolute", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		logger:   logger,
		client:   client,
		endpoint: u,
		startNow: time.Now,
	}, nil
}

func (c *Client) Endpoint() string { return c.endpoint.String() }

// CheckOverlap posts the file and returns the result rows. A nil data array
// is returned as an empty slice.
func (c *Client) CheckOverlap(ctx context.Context, filename string, body io.Reader) ([]model.OverlapResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(FormField, filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, body); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("analysis", "transport_error", time.Since(start).Seconds())
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	c.logger.DebugContext(ctx, "analysis call done",
		"status", resp.StatusCode,
		"duration", dur.String(),
		"filename", filename)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveUpstreamLatency("analysis", "transport_error", dur.Seconds())
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b)),
		}
	}

	var env model.Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		observability.ObserveUpstreamLatency("analysis", "transport_error", dur.Seconds())
		return nil, &TransportError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.Status {
		observability.ObserveUpstreamLatency("analysis", "application_error", dur.Seconds())
		return nil, &ApplicationError{Message: env.Message}
	}

	observability.ObserveUpstreamLatency("analysis", "ok", dur.Seconds())
	if env.Data == nil {
		return []model.OverlapResult{}, nil
	}
	return env.Data, nil
}
