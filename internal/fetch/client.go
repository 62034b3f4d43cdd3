package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/italolelis/fetchbox/internal/filename"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/transfer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the remote client.
type Options struct {
	// PrecheckTimeout bounds the whole HEAD exchange.
	// Default: 10s
	PrecheckTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers on GET.
	// Default: 30s
	ResponseHeaderTimeout time.Duration

	// IdleTimeout bounds each wait for body bytes once streaming started.
	// Default: 30s
	IdleTimeout time.Duration

	// ChunkSize is the read buffer size used by Stream.Next.
	// Default: 32KiB
	ChunkSize int

	// Transport overrides the underlying round tripper (tests).
	Transport http.RoundTripper
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		PrecheckTimeout:       10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleTimeout:           30 * time.Second,
		ChunkSize:             32 * 1024,
	}
}

// Metadata is the result of a successful pre-check.
type Metadata struct {
	Accessible bool
	StatusCode int
	TotalSize  int64
	Filename   string
}

// Client fetches remote resources.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new client; zero option fields take their defaults.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.PrecheckTimeout <= 0 {
		opts.PrecheckTimeout = defaults.PrecheckTimeout
	}

	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = defaults.ResponseHeaderTimeout
	}

	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaults.IdleTimeout
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		}
	}

	return &Client{
		client: &http.Client{Transport: otelhttp.NewTransport(transport)},
		opts:   opts,
	}
}

// Precheck issues a HEAD request for rawURL and reports size and filename.
func (c *Client) Precheck(ctx context.Context, rawURL string) (*Metadata, error) {
	u, err := transfer.ParseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	logger := logctx.LoggerFromContext(ctx).With("url", u.String())

	ctx, cancel := context.WithTimeout(ctx, c.opts.PrecheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return nil, &transfer.InvalidURLError{URL: rawURL, Reason: "cannot build request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.DebugContext(ctx, "precheck request failed", "err", err)

		if isTimeout(err) {
			return nil, &transfer.TimeoutError{URL: u.String(), Err: err}
		}

		return nil, &transfer.UnreachableError{URL: u.String(), Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &transfer.BadStatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}

	return &Metadata{
		Accessible: true,
		StatusCode: resp.StatusCode,
		TotalSize:  size,
		Filename:   filename.Resolve(u.String(), resp.Header.Get("Content-Disposition")),
	}, nil
}

// Stream issues the GET for rawURL and returns its body as a chunk sequence.
// The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, rawURL string) (*Stream, error) {
	u, err := transfer.ParseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	// reqCtx is cancelled with errIdle when the body stalls.
	reqCtx, cancelReq := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancelReq(nil)

		return nil, &transfer.InvalidURLError{URL: rawURL, Reason: "cannot build request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancelReq(nil)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("stream request: %w", ctx.Err())
		}

		return nil, Classify("connect", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		cancelReq(nil)

		return nil, &transfer.BadStatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}

	idle := time.AfterFunc(c.opts.IdleTimeout, func() { cancelReq(errIdle) })
	idle.Stop()

	return &Stream{
		URL:                u.String(),
		StatusCode:         resp.StatusCode,
		TotalSize:          size,
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ctx:                ctx,
		reqCtx:             reqCtx,
		cancelReq:          cancelReq,
		idle:               idle,
		idleTimeout:        c.opts.IdleTimeout,
		body:               resp.Body,
		buf:                make([]byte, c.opts.ChunkSize),
	}, nil
}
