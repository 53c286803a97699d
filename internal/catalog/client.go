package catalog

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

	"github.com/forest-guardian/flood-mapper/internal/observability"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Query selects items of one or more collections.
type Query struct {
	Collections []string
	BBox        orb.Bound
	// Datetime is optional: parameter collections are searched without one.
	Datetime *Interval
}

// Searcher returns the items matching a query, in catalog order.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]sentinel.Item, error)
}

type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	Backoff      time.Duration
	PageSize     int
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client talks to a STAC API with POST /search.
type Client struct {
	baseURL  string
	http     *http.Client
	retries  int
	backoff  time.Duration
	pageSize int
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewClient creates a Client. When client credentials are configured every
// request carries an OAuth2 bearer token.
func NewClient(cfg ClientConfig, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = creds.Client(ctx)
		httpClient.Timeout = cfg.Timeout
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		retries:  cfg.Retries,
		backoff:  cfg.Backoff,
		pageSize: cfg.PageSize,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

type searchBody struct {
	Collections []string  `json:"collections"`
	BBox        []float64 `json:"bbox"`
	Datetime    string    `json:"datetime,omitempty"`
	Limit       int       `json:"limit"`
}

type link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

type featureCollection struct {
	Features []sentinel.Item `json:"features"`
	Links    []link          `json:"links"`
}

// statusError is a non 2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog responded %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Search follows the next links until the catalog has no more pages.
func (c *Client) Search(ctx context.Context, q Query) ([]sentinel.Item, error) {
	body := searchBody{
		Collections: q.Collections,
		BBox:        BBoxValues(q.BBox),
		Limit:       c.pageSize,
	}
	if q.Datetime != nil {
		body.Datetime = q.Datetime.String()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search: %w", err)
	}

	method, url := http.MethodPost, c.baseURL+"/search"
	var items []sentinel.Item
	for page := 1; ; page++ {
		fc, err := c.fetch(ctx, method, url, payload)
		if err != nil {
			return nil, fmt.Errorf("search %v page %d: %w", q.Collections, page, err)
		}
		items = append(items, fc.Features...)

		next := nextLink(fc.Links)
		if next == nil || len(fc.Features) == 0 {
			break
		}
		method, url = http.MethodGet, next.Href
		if strings.EqualFold(next.Method, http.MethodPost) {
			method = http.MethodPost
			if len(next.Body) > 0 {
				if payload, err = mergeBody(payload, next.Body, next.Merge); err != nil {
					return nil, err
				}
			}
		}
	}

	c.logger.Debug("catalog search finished",
		zap.Strings("collections", q.Collections),
		zap.Int("items", len(items)))
	return items, nil
}

func nextLink(links []link) *link {
	for i := range links {
		if links[i].Rel == "next" {
			return &links[i]
		}
	}
	return nil
}

// mergeBody applies the body of a next link to the previous request.
func mergeBody(prev, next json.RawMessage, merge bool) (json.RawMessage, error) {
	if !merge {
		return next, nil
	}
	var base, extra map[string]json.RawMessage
	if err := json.Unmarshal(prev, &base); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(next, &extra); err != nil {
		return nil, fmt.Errorf("invalid next link body: %w", err)
	}
	for k, v := range extra {
		base[k] = v
	}
	return json.Marshal(base)
}

func (c *Client) fetch(ctx context.Context, method, url string, payload []byte) (*featureCollection, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.metrics.CatalogRequests.WithLabelValues("retry").Inc()
			c.logger.Warn("retrying catalog request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(time.Duration(attempt) * c.backoff):
			}
		}

		fc, err := c.do(ctx, method, url, payload)
		if err == nil {
			c.metrics.CatalogRequests.WithLabelValues("success").Inc()
			return fc, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	c.metrics.CatalogRequests.WithLabelValues("error").Inc()
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) (*featureCollection, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &fc, nil
}
