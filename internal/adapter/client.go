package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/logging"
)

const maxErrBody = 1 << 10

// Client is the HTTP plumbing shared by API-backed sources: bearer auth,
// one refresh-and-retry on 401/403, status mapping onto the error taxonomy,
// and JSON decoding.
type Client struct {
	platform  string
	baseURL   string
	http      *http.Client
	auth      TokenSource
	userAgent string
	headers   http.Header
	log       *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers.Set(key, value) }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = logging.Or(l) }
}

// NewClient builds a client for platform rooted at baseURL. auth may be nil.
func NewClient(platform, baseURL string, auth TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		platform:  platform,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		auth:      auth,
		userAgent: "mentionwatch/1.0",
		headers:   http.Header{},
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL is the root every relative path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON sends body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs one logical request. A 404 is reported as KindNotFound so lookups
// can turn it into a nil result.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "encode request", err)
		}
		payload = b
	}
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, path, query, payload)
		if err != nil {
			return err
		}
		if c.auth != nil && attempt == 0 &&
			(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrBody))
			resp.Body.Close()
			c.auth.Invalidate()
			c.log.Info("adapter: token rejected, refreshing", "platform", c.platform, "status", resp.StatusCode)
			continue
		}
		return c.decode(resp, out)
	}
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte) (*http.Response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.auth != nil {
		tok, err := c.auth.Token(ctx)
		if err != nil {
			return nil, tagPlatform(err, c.platform)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Provider(c.platform, err)
	}
	return resp, nil
}

func (c *Client) decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errs.New(errs.KindNotFound, c.platform, "not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		e := errs.FromStatus(c.platform, resp.StatusCode, string(b))
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
		return e
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Provider(c.platform, err)
	}
	return nil
}

// tagPlatform fills in the platform of a typed error that lacks one.
func tagPlatform(err error, platform string) error {
	if e, ok := err.(*errs.Error); ok && e.Platform == "" {
		cp := *e
		cp.Platform = platform
		return &cp
	}
	return err
}
