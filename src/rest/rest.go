package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/hendrywilliam/siren/src/ratelimit"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// 429 responses are retried transparently at most this many times per attempt.
const maxRateLimitRetries = 5

type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credential.Provider
	limiter    *ratelimit.Limiter
	timeout    time.Duration
	userAgent  string

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration

	log     *slog.Logger
	metrics *metrics.Metrics
}

type Options struct {
	BaseURL     string
	Credentials credential.Provider
	// Limiter is shared with the gateway. A private one is created when nil.
	Limiter    *ratelimit.Limiter
	HTTPClient *http.Client
	// Timeout bounds a single HTTP attempt. Defaults to 15s.
	Timeout time.Duration
	// MaxRetries bounds retries of transport failures and 5xx responses.
	// Defaults to 3; negative disables retries.
	MaxRetries int
	// Retry backoff bounds. Default 500ms and 10s.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	UserAgent            string
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
}

// RESTOptions carries per-request extras.
type RESTOptions struct {
	Headers map[string]string
	Query   url.Values
	// Reason is sent as X-Audit-Log-Reason.
	Reason string
	// Bucket overrides the route-derived rate limit key.
	Bucket string
}

type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/channels/123/messages".
	Path string
	// Body is JSON-encoded unless it is nil, []byte or json.RawMessage.
	Body    any
	Options *RESTOptions
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errs.E(errs.KindProtocol, "rest.Decode", err)
	}
	return nil
}

func NewREST(opts Options) *Client {
	c := &Client{
		baseURL:         opts.BaseURL,
		httpClient:      opts.HTTPClient,
		creds:           opts.Credentials,
		limiter:         opts.Limiter,
		timeout:         opts.Timeout,
		userAgent:       opts.UserAgent,
		initialInterval: opts.RetryInitialInterval,
		maxInterval:     opts.RetryMaxInterval,
		log:             opts.Logger,
		metrics:         opts.Metrics,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.userAgent == "" {
		c.userAgent = "DiscordBot (https://github.com/hendrywilliam/siren, 1.0.0)"
	}
	switch {
	case opts.MaxRetries < 0:
		c.maxRetries = 0
	case opts.MaxRetries == 0:
		c.maxRetries = 3
	default:
		c.maxRetries = uint64(opts.MaxRetries)
	}
	if c.initialInterval <= 0 {
		c.initialInterval = 500 * time.Millisecond
	}
	if c.maxInterval <= 0 {
		c.maxInterval = 10 * time.Second
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func (c *Client) URL() string {
	return c.baseURL
}

func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

func (c *Client) Credentials() credential.Provider {
	return c.creds
}

func (c *Client) Get(ctx context.Context, path string, options *RESTOptions) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodGet, Path: path, Options: options})
}

func (c *Client) Put(ctx context.Context, path string, body any, options *RESTOptions) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Options: options})
}

func (c *Client) Patch(ctx context.Context, path string, body any, options *RESTOptions) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodPatch, Path: path, Body: body, Options: options})
}

func (c *Client) Delete(ctx context.Context, path string, options *RESTOptions) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodDelete, Path: path, Options: options})
}

func (c *Client) Post(ctx context.Context, path string, body any, options *RESTOptions) (*Response, error) {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Options: options})
}

// Call executes req. Rate limits are waited out transparently; transport
// failures and 5xx responses are retried with exponential backoff; every
// other failure is returned immediately as a classified *errs.Error.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, errs.E(errs.KindProtocol, "rest.Call", fmt.Errorf("encoding body: %w", err))
	}
	key := RouteKey(req.Method, req.Path)
	if req.Options != nil && req.Options.Bucket != "" {
		key = req.Options.Bucket
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	var res *Response
	operation := func() error {
		r, err := c.attempt(ctx, key, req, payload)
		if err != nil {
			if ctx.Err() != nil || !errs.IsRetryable(err) || errs.Is(err, errs.KindRateLimit) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn("rest call failed, retrying", "method", req.Method, "path", req.Path, "retry_in", next, "error", err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return res, nil
}

// JSON runs req and decodes a successful response body into out.
func (c *Client) JSON(ctx context.Context, req Request, out any) error {
	res, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(res.Body) == 0 {
		return nil
	}
	return res.Decode(out)
}

func (c *Client) attempt(ctx context.Context, key string, req Request, payload []byte) (*Response, error) {
	const op = "rest.Call"
	for i := 0; ; i++ {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, err
		}
		release, err := c.limiter.Acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		res, err := c.send(ctx, req, payload, token)
		release()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errs.E(errs.KindTransport, op, err)
		}
		c.limiter.Update(key, res.Header)
		c.metrics.Request(req.Method, res.Status)

		switch {
		case res.Status == http.StatusTooManyRequests:
			retryAfter, global := parseRetryAfter(res)
			c.limiter.Deficit(key, retryAfter, global)
			c.log.Warn("rate limited by server", "bucket", key, "retry_after", retryAfter, "global", global)
			if retryAfter > c.limiter.MaxWait() || i >= maxRateLimitRetries {
				return nil, &errs.Error{Kind: errs.KindRateLimit, Op: op, Status: res.Status, RetryAfter: retryAfter, Err: ratelimit.ErrMaxWaitExceeded}
			}
			continue
		case res.Status >= 500:
			return nil, &errs.Error{Kind: errs.KindTransport, Op: op, Status: res.Status, Err: fmt.Errorf("server error: %s", http.StatusText(res.Status))}
		case res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden:
			return nil, &errs.Error{Kind: errs.KindAuthentication, Op: op, Status: res.Status, Err: apiError(res)}
		case res.Status >= 400:
			apiErr := apiError(res)
			return nil, &errs.Error{Kind: errs.KindProtocol, Op: op, Status: res.Status, Code: apiErr.Code, Err: apiErr}
		}
		return res, nil
	}
}

func (c *Client) send(ctx context.Context, req Request, payload []byte, token string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := c.endpoint(req)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	// Mandatory headers.
	httpReq.Header.Set("Authorization", token)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	if o := req.Options; o != nil {
		if o.Reason != "" {
			httpReq.Header.Set("X-Audit-Log-Reason", url.PathEscape(o.Reason))
		}
		for k, v := range o.Headers {
			httpReq.Header.Set(k, v)
		}
	}

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpRes.Body.Close()
	b, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: httpRes.StatusCode, Header: httpRes.Header, Body: b}, nil
}

func (c *Client) endpoint(req Request) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(req.Path)
	if req.Options != nil && len(req.Options.Query) > 0 {
		u.RawQuery = req.Options.Query.Encode()
	}
	return u.String(), nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

func apiError(res *Response) *errs.APIError {
	apiErr := &errs.APIError{}
	if err := json.Unmarshal(res.Body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.Status)
	}
	return apiErr
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func parseRetryAfter(res *Response) (time.Duration, bool) {
	var body rateLimitBody
	global := res.Header.Get(ratelimit.HeaderGlobal) == "true"
	if err := json.Unmarshal(res.Body, &body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second)), global || body.Global
	}
	if s := res.Header.Get("Retry-After"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second)), global
		}
	}
	return time.Second, global
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var e *errs.Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}
