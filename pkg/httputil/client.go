package httputil

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/backdrop/pkg/buildinfo"
	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/observability"
)

// DefaultTimeout bounds every request made by [NewHTTPClient].
const DefaultTimeout = 30 * time.Second

var userAgent = buildinfo.Get().UserAgent()

// MaxRetryAfter is the longest Retry-After a 429 response may ask for and
// still be retried. Longer waits fail immediately with the rate limit error.
const MaxRetryAfter = 30 * time.Second

// maxBodySize caps a single response body (background PNGs at 2x scale
// are the largest payloads).
const maxBodySize = 64 << 20

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = stderrors.New("resource not found")

	// ErrForbidden is returned for 401 and 403 responses, typically a
	// missing or expired access token.
	ErrForbidden = stderrors.New("access denied")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = stderrors.New("network error")
)

// NewHTTPClient creates an HTTP client with [DefaultTimeout].
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Client performs GET requests with default headers, retry, and a byte
// cache in front of every response body.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	keyer   cache.Keyer
	prefix  string
	ttl     time.Duration
	headers map[string]string
	backoff time.Duration
}

// NewClient creates a Client. Cached bodies are stored under the
// keyer's HTTP key for (prefix, url) for ttl. A nil cache disables caching. Headers are applied to every
// request; pass nil if none are needed.
func NewClient(c cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:    NewHTTPClient(),
		cache:   c,
		keyer:   cache.NewDefaultKeyer(),
		prefix:  prefix,
		ttl:     ttl,
		headers: headers,
		backoff: DefaultBackoff,
	}
}

// WithHTTPClient replaces the underlying transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// WithKeyer replaces the keyer used for cached bodies.
func (c *Client) WithKeyer(k cache.Keyer) *Client {
	if k != nil {
		c.keyer = k
	}
	return c
}

// GetJSON fetches url (through the cache) and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A body that does not decode should not stay cached.
		_ = c.cache.Delete(ctx, c.key(url))
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetBytes returns the body of url, serving it from the cache when present
// and retrying transient failures up to [DefaultAttempts] times otherwise.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	key := c.key(url)
	if data, ok, _ := c.cache.Get(ctx, key); ok {
		observability.Cache().OnCacheHit(ctx, "http")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "http")

	var data []byte
	err := Retry(ctx, DefaultAttempts, c.backoff, func() error {
		var err error
		data, err = c.fetch(ctx, url, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c.cache.Set(ctx, key, data, c.ttl) == nil {
		observability.Cache().OnCacheSet(ctx, "http", len(data))
	}
	return data, nil
}

// Fetch performs a single uncached GET with extra headers merged over the
// defaults. Request-specific headers override client defaults for the same key.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, url, headers)
}

func (c *Client) key(url string) string {
	return c.keyer.HTTPKey(c.prefix, url)
}

func (c *Client) fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, Retryable(fmt.Errorf("%w: read body: %v", ErrNetwork, err))
	}
	return data, nil
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrForbidden, code)
	case code == http.StatusTooManyRequests:
		rl := &errors.RateLimitedError{
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    fmt.Sprintf("status %d", code),
		}
		err := fmt.Errorf("%w: %w", ErrNetwork, rl)
		if time.Duration(rl.RetryAfter)*time.Second > MaxRetryAfter {
			return err
		}
		return Retryable(err)
	case code >= 500:
		return Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is absent or malformed.
func retryAfter(v string, now time.Time) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(secs, 0)
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(int(at.Sub(now).Round(time.Second)/time.Second), 0)
	}
	return 0
}
