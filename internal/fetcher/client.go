// Package fetcher retrieves recipe pages through an external scrape provider
// and classifies every failure as transient or permanent.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Togather-Foundation/recipes/internal/sanitize"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Togather-Recipes-Importer/0.1 (+https://togather.foundation)"

	maxResponseBytes = 10 * 1024 * 1024
	scrapePath       = "/v1/scrape"
)

// Metadata is page-level information reported by the provider.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// Page is the content of one successfully fetched URL.
type Page struct {
	URL      string
	Markdown string
	HTML     string
	Metadata Metadata
}

// Content returns the text handed to extraction: markdown when present,
// otherwise the HTML reduced to text.
func (p *Page) Content() string {
	if strings.TrimSpace(p.Markdown) != "" {
		return p.Markdown
	}
	return sanitize.Document(p.HTML)
}

type Client struct {
	baseURL         string
	apiKey          string
	userAgent       string
	httpClient      *http.Client
	robotsClient    *http.Client
	limiter         *rate.Limiter
	respectRobots   bool
	onlyMainContent bool
	logger          zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit paces provider calls. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRobots enables robots.txt checks before each fetch.
func WithRobots(enabled bool) Option {
	return func(c *Client) { c.respectRobots = enabled }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a fetch client for a Firecrawl-compatible scrape API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		userAgent:       DefaultUserAgent,
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		limiter:         rate.NewLimiter(rate.Limit(2), 2),
		onlyMainContent: true,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	Timeout         int      `json:"timeout,omitempty"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string   `json:"markdown"`
		HTML     string   `json:"html"`
		Metadata Metadata `json:"metadata"`
	} `json:"data"`
}

// Fetch retrieves one page. Every returned error is a *TransientError or
// *PermanentError unless ctx itself ended.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := ParseURL(rawURL); err != nil {
		return nil, err
	}

	if c.respectRobots {
		allowed, err := RobotsAllowed(ctx, c.robotsClient, rawURL, c.userAgent)
		if IsTransient(err) {
			return nil, err
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("fetcher: robots.txt check failed, proceeding as allowed")
			allowed = true
		}
		if !allowed {
			return nil, &PermanentError{URL: rawURL, Err: ErrDisallowed}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(scrapeRequest{
		URL:             rawURL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: c.onlyMainContent,
		Timeout:         int(c.timeout().Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scrapePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &PermanentError{URL: rawURL, Reason: "build provider request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransientError{URL: rawURL, StatusCode: resp.StatusCode, Reason: "read provider response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(rawURL, resp.StatusCode, providerMessage(body))
	}

	var decoded scrapeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransientError{URL: rawURL, StatusCode: resp.StatusCode, Reason: "malformed provider response", Err: err}
	}

	target := decoded.Data.Metadata.StatusCode
	if !decoded.Success {
		if target != 0 && target != http.StatusOK {
			return nil, classifyStatus(rawURL, target, decoded.Error)
		}
		return nil, &PermanentError{URL: rawURL, Reason: snippet(decoded.Error)}
	}
	if target >= 400 {
		return nil, classifyStatus(rawURL, target, "")
	}

	page := &Page{
		URL:      rawURL,
		Markdown: decoded.Data.Markdown,
		HTML:     decoded.Data.HTML,
		Metadata: decoded.Data.Metadata,
	}
	if strings.TrimSpace(page.Markdown) == "" && strings.TrimSpace(page.HTML) == "" {
		return nil, &PermanentError{URL: rawURL, StatusCode: target, Reason: "page has no content"}
	}
	fillMetadataFromHTML(&page.Metadata, page.HTML)
	if page.Metadata.SourceURL == "" {
		page.Metadata.SourceURL = rawURL
	}

	c.logger.Debug().
		Str("url", rawURL).
		Int("markdown_bytes", len(page.Markdown)).
		Int("html_bytes", len(page.HTML)).
		Msg("fetcher: page fetched")

	return page, nil
}

// Ping checks that the provider answers at all. Any HTTP response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

func (c *Client) timeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return DefaultTimeout
}

func classifyTransportError(rawURL string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{URL: rawURL, Reason: "timeout", Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &TransientError{URL: rawURL, Reason: "provider unreachable", Err: fmt.Errorf("%w: %w", ErrProviderUnavailable, err)}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &TransientError{URL: rawURL, Reason: "provider unreachable", Err: fmt.Errorf("%w: %w", ErrProviderUnavailable, err)}
	}
	return &TransientError{URL: rawURL, Reason: "network error", Err: err}
}

func classifyStatus(rawURL string, status int, message string) error {
	reason := snippet(message)
	switch {
	case status == http.StatusTooManyRequests:
		return &TransientError{URL: rawURL, StatusCode: status, Reason: firstNonEmpty(reason, "rate limited")}
	case status == http.StatusRequestTimeout:
		return &TransientError{URL: rawURL, StatusCode: status, Reason: firstNonEmpty(reason, "timeout")}
	case status >= 500:
		return &TransientError{URL: rawURL, StatusCode: status, Reason: reason}
	case status == http.StatusNotFound || status == http.StatusGone:
		return &PermanentError{URL: rawURL, StatusCode: status, Reason: firstNonEmpty(reason, "not found")}
	default:
		return &PermanentError{URL: rawURL, StatusCode: status, Reason: reason}
	}
}

func providerMessage(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	return string(body)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
