package otel

import (
	"context"
	"time"

	"github.com/jilio/statebus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/jilio/statebus"
)

// Observability implements statebus.Observability using OpenTelemetry
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	commitCounter   metric.Int64Counter
	commitDuration  metric.Float64Histogram
	commitErrors    metric.Int64Counter
	bindingCounter  metric.Int64Counter
	bindingDuration metric.Float64Histogram
	bindingErrors   metric.Int64Counter
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.commitCounter, err = obs.meter.Int64Counter(
		"statebus.commit.count",
		metric.WithDescription("Number of commits attempted"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, err
	}

	obs.commitDuration, err = obs.meter.Float64Histogram(
		"statebus.commit.duration",
		metric.WithDescription("Commit duration including middleware"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.commitErrors, err = obs.meter.Int64Counter(
		"statebus.commit.errors",
		metric.WithDescription("Number of commits rejected by middleware"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.bindingCounter, err = obs.meter.Int64Counter(
		"statebus.binding.count",
		metric.WithDescription("Number of async bindings started"),
		metric.WithUnit("{binding}"),
	)
	if err != nil {
		return nil, err
	}

	obs.bindingDuration, err = obs.meter.Float64Histogram(
		"statebus.binding.duration",
		metric.WithDescription("Time from binding start to terminal status"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.bindingErrors, err = obs.meter.Int64Counter(
		"statebus.binding.errors",
		metric.WithDescription("Number of bindings whose source failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

type attrsKey struct{}

// withAttrs carries the start attributes to the matching Complete call.
func withAttrs(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	return context.WithValue(ctx, attrsKey{}, attrs)
}

func attrsFrom(ctx context.Context) []attribute.KeyValue {
	attrs, _ := ctx.Value(attrsKey{}).([]attribute.KeyValue)
	return attrs
}

// OnCommitStart is called before the middleware runs
func (o *Observability) OnCommitStart(ctx context.Context, actionType string) context.Context {
	attrs := []attribute.KeyValue{attribute.String("action.type", actionType)}

	ctx, _ = o.tracer.Start(ctx, "statebus.commit: "+actionType, trace.WithAttributes(attrs...))
	o.commitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return withAttrs(ctx, attrs...)
}

// OnCommitComplete is called once the commit was stored or rejected
func (o *Observability) OnCommitComplete(ctx context.Context, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	attrs := attrsFrom(ctx)

	o.commitDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.commitErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// OnBindingStart is called when a binding enters Running
func (o *Observability) OnBindingStart(ctx context.Context, path string, kind statebus.SourceKind) context.Context {
	attrs := []attribute.KeyValue{
		attribute.String("binding.path", path),
		attribute.String("binding.kind", kind.String()),
	}

	ctx, _ = o.tracer.Start(ctx, "statebus.binding: "+path, trace.WithAttributes(attrs...))
	o.bindingCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return withAttrs(ctx, attrs...)
}

// OnBindingComplete is called when a binding reaches a terminal status
func (o *Observability) OnBindingComplete(ctx context.Context, status statebus.BindingStatus, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	statusAttr := attribute.String("binding.status", status.String())

	base := attrsFrom(ctx)
	attrs := make([]attribute.KeyValue, 0, len(base)+1)
	attrs = append(attrs, base...)
	attrs = append(attrs, statusAttr)

	span.SetAttributes(statusAttr)
	o.bindingDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.bindingErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// Ensure Observability implements statebus.Observability
var _ statebus.Observability = (*Observability)(nil)
