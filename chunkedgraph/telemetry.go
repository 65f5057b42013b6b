package chunkedgraph

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"
)

const instrumentationName = "github.com/sumiya-kuroda/CAVEclient/chunkedgraph"

type instruments struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	received metric.Int64Counter
	version  attribute.KeyValue
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider, version int, logger pslog.Base) *instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	in := &instruments{
		tracer:  tp.Tracer(instrumentationName),
		version: attribute.Int("chunkedgraph.api_version", version),
	}
	var err error
	in.requests, err = meter.Int64Counter(
		"chunkedgraph.client.requests",
		metric.WithDescription("Chunked-graph requests by operation and outcome"),
	)
	logMetricInitError(logger, "chunkedgraph.client.requests", err)
	in.duration, err = meter.Float64Histogram(
		"chunkedgraph.client.duration",
		metric.WithDescription("Chunked-graph request latency"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "chunkedgraph.client.duration", err)
	in.received, err = meter.Int64Counter(
		"chunkedgraph.client.response_bytes",
		metric.WithDescription("Response payload bytes received"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "chunkedgraph.client.response_bytes", err)
	return in
}

func logMetricInitError(logger pslog.Base, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}

func (in *instruments) start(ctx context.Context, op, method, url string) (context.Context, trace.Span) {
	ctx, span := in.tracer.Start(ctx, "chunkedgraph."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("chunkedgraph.op", op),
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
		in.version,
	)
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		span.SetAttributes(attribute.String("chunkedgraph.correlation_id", cid))
	}
	return ctx, span
}

func (in *instruments) finish(ctx context.Context, span trace.Span, op string, status, size int, begin time.Time, err error) {
	result := "ok"
	if err != nil {
		result = resultLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	attrs := metric.WithAttributes(
		attribute.String("chunkedgraph.op", op),
		attribute.String("chunkedgraph.result", result),
		in.version,
	)
	if in.requests != nil {
		in.requests.Add(ctx, 1, attrs)
	}
	if in.duration != nil {
		in.duration.Record(ctx, float64(time.Since(begin).Microseconds())/1000, attrs)
	}
	if in.received != nil && size > 0 {
		in.received.Add(ctx, int64(size), metric.WithAttributes(attribute.String("chunkedgraph.op", op)))
	}
}

func resultLabel(err error) string {
	var (
		httpErr   *HTTPError
		decodeErr *DecodeError
	)
	switch {
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &httpErr) && httpErr.Err != nil:
		return "transport_error"
	case errors.As(err, &httpErr):
		return "http_error"
	}
	return "error"
}
