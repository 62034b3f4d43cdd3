package fetch

import (
	"context"
	"errors"

	"github.com/italolelis/fetchbox/internal/telemetry"
	"github.com/italolelis/fetchbox/internal/transfer"
)

// Fetcher is the remote side of a transfer.
type Fetcher interface {
	Precheck(ctx context.Context, rawURL string) (*Metadata, error)
	Stream(ctx context.Context, rawURL string) (*Stream, error)
}

var _ Fetcher = (*Client)(nil)

// InstrumentedClient wraps a Fetcher with telemetry.
type InstrumentedClient struct {
	client    Fetcher
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented fetcher.
func NewInstrumentedClient(client Fetcher, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// Precheck runs the pre-check with a span and records its outcome.
func (c *InstrumentedClient) Precheck(ctx context.Context, rawURL string) (*Metadata, error) {
	var result *Metadata

	err := c.telemetry.InstrumentOperation(ctx, "fetch_precheck", "fetch", func(ctx context.Context) error {
		var err error
		result, err = c.client.Precheck(ctx, rawURL)

		return err
	})

	c.telemetry.RecordPrecheck(precheckOutcome(err))

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Stream opens the body stream with a span around connection setup.
func (c *InstrumentedClient) Stream(ctx context.Context, rawURL string) (*Stream, error) {
	var result *Stream

	err := c.telemetry.InstrumentOperation(ctx, "fetch_stream_open", "fetch", func(ctx context.Context) error {
		var err error
		result, err = c.client.Stream(ctx, rawURL)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func precheckOutcome(err error) string {
	var (
		invalid     *transfer.InvalidURLError
		badStatus   *transfer.BadStatusError
		timeout     *transfer.TimeoutError
		unreachable *transfer.UnreachableError
	)

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid):
		return "invalid_url"
	case errors.As(err, &badStatus):
		return "bad_status"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &unreachable):
		return "unreachable"
	default:
		return "error"
	}
}
