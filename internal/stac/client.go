package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/cache"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var ErrNilClient = errors.New("stac: nil client")

// StatusError is returned for non-200 responses from the catalog.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stac: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type SearchParams struct {
	Collections   []string
	BBox          orb.Bound
	Start         time.Time
	End           time.Time
	CloudCoverMax float64
	Limit         int
}

// Datetime renders the STAC interval covering whole days from Start to End.
func (p SearchParams) Datetime() string {
	start := p.Start.UTC().Format("2006-01-02") + "T00:00:00Z"
	end := p.End.UTC().Format("2006-01-02") + "T23:59:59Z"
	return start + "/" + end
}

func (p SearchParams) validate() error {
	if len(p.Collections) == 0 {
		return errors.New("stac: at least one collection is required")
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("stac: end date %s is before start date %s", p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	if p.BBox.IsEmpty() {
		return errors.New("stac: search bbox is empty")
	}
	if p.Limit < 1 {
		return fmt.Errorf("stac: limit must be positive, got %d", p.Limit)
	}
	return nil
}

type searchRequest struct {
	Collections []string                      `json:"collections"`
	BBox        []float64                     `json:"bbox"`
	Datetime    string                        `json:"datetime"`
	Query       map[string]map[string]float64 `json:"query,omitempty"`
	Limit       int                           `json:"limit"`
}

func (p SearchParams) request() searchRequest {
	req := searchRequest{
		Collections: p.Collections,
		BBox:        []float64{p.BBox.Min.X(), p.BBox.Min.Y(), p.BBox.Max.X(), p.BBox.Max.Y()},
		Datetime:    p.Datetime(),
		Limit:       p.Limit,
	}
	if p.CloudCoverMax > 0 {
		req.Query = map[string]map[string]float64{
			"eo:cloud_cover": {"lt": p.CloudCoverMax},
		}
	}
	return req
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	maxItems   int
	cache      cache.CacheService[[]Item]
	metrics    *observability.Metrics
	logger     logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetries sets how many times a page request is attempted and the pause between attempts.
func WithRetries(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.retryDelay = delay
	}
}

// WithMaxItems caps the number of items collected across pages.
func WithMaxItems(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxItems = n
		}
	}
}

func WithCache(fc cache.CacheService[[]Item]) Option {
	return func(c *Client) {
		c.cache = fc
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: time.Minute},
		retries:    3,
		retryDelay: 5 * time.Second,
		maxItems:   50,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pageRequest struct {
	method string
	url    string
	body   []byte
}

// Search runs an item search and follows next links until the catalog runs
// out of pages or maxItems items have been collected.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]Item, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(p.request())
	if err != nil {
		return nil, fmt.Errorf("stac: marshal search request: %w", err)
	}

	var key string
	if c.cache != nil {
		key = c.cache.GenerateKey(c.baseURL, string(body), c.maxItems)
		if items, ok := c.cache.Get(key); ok {
			c.observeSearch("cached", 0)
			c.logger.WithField("items", len(items)).Debug("stac search served from cache")
			return items, nil
		}
	}

	start := time.Now()
	req := pageRequest{method: http.MethodPost, url: c.baseURL + "/search", body: body}
	var items []Item
	for page := 1; ; page++ {
		fc, err := c.fetchPage(ctx, req)
		if err != nil {
			c.observeSearch("error", time.Since(start))
			return nil, err
		}
		items = append(items, fc.Features...)
		c.logger.WithFields(logrus.Fields{"page": page, "items": len(fc.Features)}).Debug("stac page fetched")

		if len(items) >= c.maxItems {
			items = items[:c.maxItems]
			break
		}
		next, ok, err := nextPage(fc.Links, req.body)
		if err != nil {
			c.observeSearch("error", time.Since(start))
			return nil, err
		}
		if !ok || len(fc.Features) == 0 {
			break
		}
		req = next
	}
	c.observeSearch("success", time.Since(start))

	if c.cache != nil {
		if err := c.cache.Set(key, items); err != nil {
			c.logger.WithError(err).Warn("failed to cache stac search results")
		}
	}
	return items, nil
}

func (c *Client) observeSearch(outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.SearchRequests.WithLabelValues(outcome).Inc()
	if outcome != "cached" {
		c.metrics.SearchDuration.Observe(d.Seconds())
	}
}

func (c *Client) fetchPage(ctx context.Context, req pageRequest) (*FeatureCollection, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		fc, err := c.doPage(ctx, req)
		if err == nil {
			return fc, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			return nil, err
		}
		if attempt == c.retries {
			break
		}

		c.logger.WithError(err).WithField("attempt", attempt).Warn("stac request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, fmt.Errorf("stac: request failed after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) doPage(ctx context.Context, p pageRequest) (*FeatureCollection, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("stac: create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	if p.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stac: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var fc FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("stac: decode response: %w", err)
	}
	return &fc, nil
}

// nextPage builds the request for the rel=next link, honouring the STAC API
// "method", "body" and "merge" link fields.
func nextPage(links []Link, prevBody []byte) (pageRequest, bool, error) {
	for _, l := range links {
		if l.Rel != "next" || l.Href == "" {
			continue
		}
		method := strings.ToUpper(l.Method)
		if method == "" || method == http.MethodGet {
			return pageRequest{method: http.MethodGet, url: l.Href}, true, nil
		}

		body := prevBody
		if len(l.Body) > 0 {
			if l.Merge {
				merged, err := mergeBodies(prevBody, l.Body)
				if err != nil {
					return pageRequest{}, false, err
				}
				body = merged
			} else {
				body = l.Body
			}
		}
		return pageRequest{method: method, url: l.Href, body: body}, true, nil
	}
	return pageRequest{}, false, nil
}

func mergeBodies(base, overlay []byte) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("stac: decode previous body: %w", err)
		}
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(overlay, &extra); err != nil {
		return nil, fmt.Errorf("stac: decode next link body: %w", err)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}
