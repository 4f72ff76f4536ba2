// Package relay sends webmentions to the federation relay that publishes
// posts to social networks.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the brid.gy relay.
const (
	DefaultEndpoint = "https://brid.gy/publish/webmention"
	DefaultTimeout  = 10 * time.Second
)

// Transport error tags.
const (
	ErrTagTimeout = "timeout"
	ErrTagNetwork = "network-error"
)

// Result is the outcome of one relay call. Failures are data, not errors.
type Result struct {
	OK            bool   `json:"ok"`
	Status        int    `json:"status"`
	SyndicatedURL string `json:"syndicatedUrl,omitempty"`
	// Error is set only for transport failures: ErrTagTimeout or ErrTagNetwork.
	Error string `json:"error,omitempty"`
}

// Publisher publishes a source URL to a relay target.
type Publisher interface {
	Publish(ctx context.Context, source, target string) Result
}

// Client is a Publisher for webmention relays.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the hard per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithRateLimit caps outbound calls. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cl *Client) {
		if perSecond <= 0 {
			cl.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a relay client for endpoint (DefaultEndpoint if empty).
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type publishResponse struct {
	URL      string `json:"url"`
	Location string `json:"location"`
}

// Publish sends a form-encoded webmention {source, target}. The call is a
// success only when the relay answers 2xx and a published URL can be found
// in the JSON body or the Location header.
func (c *Client) Publish(ctx context.Context, source, target string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return limiterFailure(ctx)
		}
	}

	form := url.Values{"source": {source}, "target": {target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Error: ErrTagNetwork}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return transportFailure(ctx, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return transportFailure(ctx, err)
	}

	var payload publishResponse
	_ = json.Unmarshal(body, &payload)

	syndicated := firstNonEmpty(payload.URL, payload.Location, res.Header.Get("Location"))
	return Result{
		OK:            res.StatusCode >= 200 && res.StatusCode < 300,
		Status:        res.StatusCode,
		SyndicatedURL: syndicated,
	}
}

func transportFailure(ctx context.Context, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Error: ErrTagTimeout}
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return Result{Error: ErrTagTimeout}
	}
	return Result{Error: ErrTagNetwork}
}

// limiterFailure tags a failed limiter wait. The limiter gives up early,
// without a context error, when the next token lies past the call deadline.
func limiterFailure(ctx context.Context) Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		return Result{Error: ErrTagNetwork}
	}
	return Result{Error: ErrTagTimeout}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
