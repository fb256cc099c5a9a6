// Package mtd is a client for the CUMTD developer API (v2.2, JSON).
package mtd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/transit"
)

const DefaultBaseURL = "https://developer.cumtd.com/api/v2.2/json/"

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mtd %s: HTTP %d", e.Endpoint, e.StatusCode)
}

// ClientMetrics receives per-request observations.
type ClientMetrics interface {
	ObserveRequest(endpoint string, status string, d time.Duration)
}

type Client struct {
	logger         *zap.Logger
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	previewMinutes int
	metrics        ClientMetrics
}

type Options struct {
	BaseURL        string
	APIKey         string
	PreviewMinutes int
	Timeout        time.Duration
	Metrics        ClientMetrics
}

func NewClient(logger *zap.Logger, opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	preview := opts.PreviewMinutes
	if preview <= 0 {
		preview = 60
	}
	return &Client{
		logger:         logger,
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        base,
		apiKey:         opts.APIKey,
		previewMinutes: preview,
		metrics:        opts.Metrics,
	}
}

// PreviewMinutes is the departure look-ahead window requested from the API.
func (c *Client) PreviewMinutes() int { return c.previewMinutes }

// GetStops returns every parent stop with its boarding points.
func (c *Client) GetStops(ctx context.Context) ([]transit.ParentStop, error) {
	var resp stopsResponse
	if err := c.get(ctx, "getstops", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]transit.ParentStop, 0, len(resp.Stops))
	for _, s := range resp.Stops {
		out = append(out, s.toParentStop())
	}
	return out, nil
}

// GetDeparturesByStop returns departures from any point of the parent stop
// within the preview window, soonest first as ordered by the API.
func (c *Client) GetDeparturesByStop(ctx context.Context, stopID string) ([]transit.Departure, error) {
	q := url.Values{}
	q.Set("stop_id", stopID)
	q.Set("pt", strconv.Itoa(c.previewMinutes))
	var resp departuresResponse
	if err := c.get(ctx, "getdeparturesbystop", q, &resp); err != nil {
		return nil, err
	}
	out := make([]transit.Departure, 0, len(resp.Departures))
	for _, d := range resp.Departures {
		out = append(out, d.toDeparture())
	}
	return out, nil
}

// GetStopsByLatLon returns stops near p. Distances are in feet.
func (c *Client) GetStopsByLatLon(ctx context.Context, p geo.Point) ([]transit.NearbyStop, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	var resp stopsResponse
	if err := c.get(ctx, "getstopsbylatlon", q, &resp); err != nil {
		return nil, err
	}
	out := make([]transit.NearbyStop, 0, len(resp.Stops))
	for _, s := range resp.Stops {
		out = append(out, transit.NearbyStop{ParentStop: s.toParentStop(), DistanceFeet: s.Distance})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, dst any) error {
	if q == nil {
		q = url.Values{}
	}
	// the key never leaves this function; errors and logs carry safeURL
	safeURL := c.baseURL + endpoint + "?" + q.Encode()
	q.Set("key", c.apiKey)
	u := c.baseURL + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("mtd %s: build request: %w", endpoint, redactURL(err, safeURL))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = redactURL(err, safeURL)
		c.observe(endpoint, "error", start)
		c.logger.Warn("error performing request",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("mtd %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Info("received non-OK response",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode),
		)
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("mtd %s: decode response: %w", endpoint, err)
	}
	return nil
}

// redactURL swaps the URL of a *url.Error for one without the API key.
func redactURL(err error, safeURL string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: safeURL, Err: ue.Err}
	}
	return err
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(endpoint, status, time.Since(start))
	}
}
