// Package catalog is the HTTP client for the external learning catalog API:
// the content search endpoint used by agents and the paged live-events listing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("catalog API token not configured")
	// ErrUnauthorized is returned when the catalog rejects the token.
	ErrUnauthorized = errors.New("catalog authentication failed")
)

// StatusError reports a non-200 response from the catalog.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog returned status %d: %s", e.Code, e.Body)
}

const (
	defaultSearchLimit = 30
	liveEventsPageSize = 100
	maxErrorBody       = 512
)

// Options configures a Client.
type Options struct {
	Token         string
	ContentURL    string
	LiveEventsURL string
	WebURL        string
	Timeout       time.Duration
	CacheTTL      time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the catalog API with token authentication.
type Client struct {
	httpClient    *http.Client
	token         string
	contentURL    string
	liveEventsURL string
	webURL        string
	searches      *cache.Cache
	logger        *slog.Logger
}

// New creates a catalog client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Client{
		httpClient:    httpClient,
		token:         strings.TrimSpace(opts.Token),
		contentURL:    opts.ContentURL,
		liveEventsURL: opts.LiveEventsURL,
		webURL:        strings.TrimRight(opts.WebURL, "/"),
		searches:      cache.New(ttl, 2*ttl),
		logger:        logger,
	}
}

// Query parameterises a content search.
type Query struct {
	TopicSlug     string
	ContentFormat string
	Limit         int
	Status        string
}

// Item is one content record from the search endpoint.
type Item struct {
	Title           string   `json:"title"`
	ContentFormat   string   `json:"content_format"`
	Description     string   `json:"description"`
	Authors         nameList `json:"authors"`
	Cover           string   `json:"cover"`
	WebURL          string   `json:"web_url"`
	DurationSeconds float64  `json:"duration_seconds"`
	VirtualPages    int      `json:"virtual_pages"`
	Level           string   `json:"level"`
	Issued          string   `json:"issued"`
	Topics          nameList `json:"topics"`
}

type searchPage struct {
	Results []Item `json:"results"`
}

// Search queries the content endpoint. Results are cached per request URL.
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	slug := strings.TrimSpace(q.TopicSlug)
	if slug == "" {
		return nil, fmt.Errorf("search topic is required")
	}

	params := url.Values{}
	params.Set("any_topic_slug", slug)
	if q.ContentFormat != "" {
		params.Set("content_format", q.ContentFormat)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	status := q.Status
	if status == "" {
		status = "Live"
	}
	params.Set("status", status)

	endpoint, err := withQuery(c.contentURL, params)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.searches.Get(endpoint); ok {
		return cached.([]Item), nil
	}

	var page searchPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("search %q: %w", slug, err)
	}

	c.searches.SetDefault(endpoint, page.Results)
	c.logger.Debug("Catalog search", "topic", slug, "format", q.ContentFormat, "results", len(page.Results))
	return page.Results, nil
}

// CoverURL turns a cover path into a 400px-wide image URL.
func (c *Client) CoverURL(path string) string {
	if path == "" {
		return ""
	}
	return c.webURL + path + "400w/"
}

// WebURL returns the configured public site base URL.
func (c *Client) WebURL() string {
	return c.webURL
}

// HasToken reports whether the client can authenticate.
func (c *Client) HasToken() bool {
	return c.token != ""
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close catalog response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse catalog url %q: %w", base, err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nameList accepts plain strings or objects carrying a name or slug,
// since authors and topics come back in either shape.
type nameList []string

func (n *nameList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*n = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		}
		if json.Unmarshal(r, &obj) != nil {
			continue
		}
		switch {
		case obj.Name != "":
			out = append(out, obj.Name)
		case obj.Slug != "":
			out = append(out, obj.Slug)
		}
	}
	*n = out
	return nil
}
