package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// Defaults applied by NewClient.
const (
	DefaultMaxRetries  = 4
	DefaultBackoffBase = 1 * time.Second
	DefaultMaxBodySize = 50 * 1024 * 1024
	DefaultUserAgent   = "docmirror/1.0 (+https://github.com/nao1215/docmirror)"

	// maxRedirects bounds redirect chains.
	maxRedirects = 10
)

// transientStatuses are retried; every other status is returned as-is.
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client performs GET requests with retry and backoff.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	userAgent    string
	maxRetries   int
	backoffBase  time.Duration
	maxBodySize  int64
	sleep        Sleeper
	now          func() time.Time
	logger       *slog.Logger
	proxyAddress string
	cookie       string
	headers      map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBackoffBase sets the base of the exponential backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize caps the number of decoded body bytes read per response.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithSleeper replaces the function used to wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithHTTPClient uses hc instead of building a client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithProxy routes every request through the SOCKS5 proxy at address ("host:port").
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithHeaders injects a cookie and extra headers into every request,
// including redirects.
func WithHeaders(cookie string, headers map[string]string) Option {
	return func(c *Client) {
		c.cookie = cookie
		c.headers = headers
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for FetchedAt and Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a Client whose requests time out after timeout.
func NewClient(timeout time.Duration, opts ...Option) (*Client, error) {
	c := &Client{
		timeout:     timeout,
		userAgent:   DefaultUserAgent,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		maxBodySize: DefaultMaxBodySize,
		sleep:       SleepContext,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := c.newHTTPClient()
		if err != nil {
			return nil, err
		}
		c.httpClient = hc
	}

	if c.cookie != "" || len(c.headers) > 0 {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *c.httpClient
		wrapped.Transport = &headerInjectingTransport{
			base:    base,
			cookie:  c.cookie,
			headers: c.headers,
		}
		c.httpClient = &wrapped
	}

	return c, nil
}

// newHTTPClient builds the underlying http.Client, dialing through the
// SOCKS5 proxy when one is configured.
func (c *Client) newHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
		// Bodies are decoded in readBody so brotli is supported too.
		DisableCompression: true,
	}

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Get fetches rawURL (normalized first). Transient statuses and network
// errors are retried; after the last attempt a transient status is returned
// as a result while a network failure is returned as *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	return c.get(ctx, rawURL, nil)
}

// GetConditional is Get with If-None-Match / If-Modified-Since validators.
// A 304 response is returned as a normal result with an empty body.
func (c *Client) GetConditional(ctx context.Context, rawURL, etag, lastModified string) (*model.FetchResult, error) {
	extra := http.Header{}
	if etag != "" {
		extra.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		extra.Set("If-Modified-Since", lastModified)
	}
	return c.get(ctx, rawURL, extra)
}

func (c *Client) get(ctx context.Context, rawURL string, extra http.Header) (*model.FetchResult, error) {
	target := urlscope.Normalize(rawURL)

	for attempt := 0; ; attempt++ {
		res, ferr := c.attempt(ctx, target, extra)
		if ferr == nil {
			return res, nil
		}
		ferr.Attempts = attempt + 1

		if !shouldRetry(ferr, attempt, c.maxRetries) {
			if res != nil {
				return res, nil
			}
			return nil, ferr
		}

		wait := backoff(ferr, c.backoffBase, attempt)
		c.logger.Debug("retrying fetch",
			"url", target,
			"attempt", attempt+1,
			"wait", wait,
			"cause", ferr.Err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &FetchError{URL: target, Attempts: attempt + 1, Err: err}
		}
	}
}

// attempt performs a single request. A non-nil result together with a
// non-nil error means the status was transient.
func (c *Client) attempt(ctx context.Context, target string, extra http.Header) (*model.FetchResult, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err, Retryable: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	body, err := readBody(resp, c.maxBodySize)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err, Retryable: ctx.Err() == nil}
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	res := &model.FetchResult{
		URL:        target,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FetchedAt:  c.now(),
	}

	if transientStatuses[resp.StatusCode] {
		ferr := &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        fmt.Errorf("%w: %d", ErrTransientStatus, resp.StatusCode),
		}
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
			ferr.RetryAfter = d
			ferr.hasRetryAfter = true
		}
		return res, ferr
	}
	return res, nil
}

// parseRetryAfter accepts a number of seconds (fractions allowed) or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
