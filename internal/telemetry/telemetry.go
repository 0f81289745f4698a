// Package telemetry provides the OpenTelemetry-backed
// scheduler.Telemetry implementation described in SPEC_FULL.md §4.5a: a
// span per tag, a span per reaction triggering, and RED-style counters.
//
// Grounded on Mindburn-Labs-helm's core/pkg/observability.Provider,
// scaled down to the subset of the OpenTelemetry SDK this module
// actually depends on (no OTLP exporter — spans and metrics are held by
// the in-process SDK providers, which is enough to exercise the
// dependency and give an embedder a natural place to attach their own
// exporter via the returned providers).
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// Provider owns the tracer/meter providers backing one scheduler run.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	tagCounter      metric.Int64Counter
	reactionCounter metric.Int64Counter
	errorCounter    metric.Int64Counter
	physicalCounter metric.Int64Counter

	ctx context.Context

	// spanMu guards tagSpans/reactionSpan: the scheduler's Workers>1
	// dispatch mode calls ReactionStart/ReactionEnd concurrently from
	// every reaction in a level, all against the same Provider.
	spanMu       sync.Mutex
	tagSpans     map[tag.Tag]trace.Span
	reactionSpan map[reactionKey]trace.Span
}

type reactionKey struct {
	Tag      tag.Tag
	Reaction ids.ReactionID
}

// New builds a Provider for a run named serviceName. Callers should call
// Shutdown when the run completes.
func New(ctx context.Context, serviceName string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("reactor.scheduler"),
		meter:          mp.Meter("reactor.scheduler"),
		ctx:            ctx,
		tagSpans:       make(map[tag.Tag]trace.Span),
		reactionSpan:   make(map[reactionKey]trace.Span),
	}

	if p.tagCounter, err = p.meter.Int64Counter("reactor.tags.processed",
		metric.WithDescription("Tags processed"), metric.WithUnit("{tag}")); err != nil {
		return nil, err
	}
	if p.reactionCounter, err = p.meter.Int64Counter("reactor.reactions.run",
		metric.WithDescription("Reaction triggerings run"), metric.WithUnit("{reaction}")); err != nil {
		return nil, err
	}
	if p.errorCounter, err = p.meter.Int64Counter("reactor.reactions.errors",
		metric.WithDescription("Reaction triggerings that returned an error"), metric.WithUnit("{reaction}")); err != nil {
		return nil, err
	}
	if p.physicalCounter, err = p.meter.Int64Counter("reactor.ingress.deliveries",
		metric.WithDescription("Physical ingress deliveries assigned a tag"), metric.WithUnit("{delivery}")); err != nil {
		return nil, err
	}
	return p, nil
}

// Shutdown flushes and stops the tracer/meter providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

func (p *Provider) TagStart(t tag.Tag) {
	_, span := p.tracer.Start(p.ctx, "tag",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("reactor.tag.offset_ns", int64(t.Offset)),
			attribute.Int64("reactor.tag.microstep", int64(t.Microstep)),
		),
	)
	p.spanMu.Lock()
	p.tagSpans[t] = span
	p.spanMu.Unlock()
	p.tagCounter.Add(p.ctx, 1)
}

func (p *Provider) TagEnd(t tag.Tag) {
	p.spanMu.Lock()
	span, ok := p.tagSpans[t]
	if ok {
		delete(p.tagSpans, t)
	}
	p.spanMu.Unlock()
	if ok {
		span.End()
	}
}

func (p *Provider) ReactionStart(t tag.Tag, r ids.ReactionID) {
	_, span := p.tracer.Start(p.ctx, "reaction",
		trace.WithAttributes(
			attribute.Int64("reactor.tag.offset_ns", int64(t.Offset)),
			attribute.Int64("reactor.tag.microstep", int64(t.Microstep)),
			attribute.Int64("reactor.reaction.id", int64(r)),
		),
	)
	p.spanMu.Lock()
	p.reactionSpan[reactionKey{t, r}] = span
	p.spanMu.Unlock()
	p.reactionCounter.Add(p.ctx, 1, metric.WithAttributes(attribute.Int64("reactor.reaction.id", int64(r))))
}

func (p *Provider) ReactionEnd(t tag.Tag, r ids.ReactionID, err error) {
	key := reactionKey{t, r}
	p.spanMu.Lock()
	span, ok := p.reactionSpan[key]
	if ok {
		delete(p.reactionSpan, key)
	}
	p.spanMu.Unlock()
	if ok {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
	if err != nil {
		p.errorCounter.Add(p.ctx, 1, metric.WithAttributes(attribute.Int64("reactor.reaction.id", int64(r))))
	}
}

func (p *Provider) PhysicalDelivery(action ids.ActionID, t tag.Tag) {
	p.physicalCounter.Add(p.ctx, 1, metric.WithAttributes(attribute.Int64("reactor.action.id", int64(action))))
}
