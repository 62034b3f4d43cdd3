package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here feed metrics, so they must stay low cardinality:
// operation names, components and status values only. Session ids, URLs and
// filenames belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, time.Since(start))

	return err
}

// DownloadFunc runs one transfer and reports its terminal status and byte count.
type DownloadFunc func(ctx context.Context) (status string, bytes int64, err error)

// InstrumentDownload wraps a transfer with a span, the active gauge and the
// per-status counters.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn DownloadFunc) error {
	if t == nil || t.tracer == nil {
		_, _, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	ctx, span := t.tracer.Start(ctx, "download")
	defer span.End()

	status, bytes, err := fn(ctx)

	span.SetAttributes(
		attribute.String("component", "session"),
		attribute.String("status", status),
		attribute.Int64("download.bytes", bytes),
	)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	t.RecordDownload(status, bytes, time.Since(start))

	return err
}
