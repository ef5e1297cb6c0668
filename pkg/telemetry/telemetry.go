// Package telemetry turns an OpenTelemetry tracer into a state machine trace
// hook. Without a tracer it falls back to a provider whose spans record nothing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-rxhsm/embedded"
)

const Name = "github.com/stateforward/go-rxhsm"

var (
	KeyId       = attribute.Key("hsm.id")
	KeyState    = attribute.Key("hsm.state")
	KeyElements = attribute.Key("hsm.elements")
)

type Provider struct {
	trace.TracerProvider
}

var (
	provider    = &Provider{}
	tracer      = &Tracer{}
	span        = &Span{}
	spanContext = trace.SpanContext{}
)

func NewProvider() *Provider {
	return provider
}

func (provider *Provider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return tracer
}

type Tracer struct {
	trace.Tracer
}

func (tracer *Tracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, span
}

type Span struct {
	trace.Span
}

func (span *Span) End(options ...trace.SpanEndOption)                  {}
func (span *Span) AddEvent(name string, options ...trace.EventOption)  {}
func (span *Span) AddLink(link trace.Link)                             {}
func (span *Span) IsRecording() bool                                   { return false }
func (span *Span) RecordError(err error, options ...trace.EventOption) {}
func (span *Span) SetAttributes(kv ...attribute.KeyValue)              {}
func (span *Span) SetName(name string)                                 {}
func (span *Span) SetStatus(code codes.Code, description string)       {}
func (span *Span) SpanContext() trace.SpanContext                      { return spanContext }
func (span *Span) TracerProvider() trace.TracerProvider                { return provider }

// Trace returns a hook starting one span per runtime step, named after the
// step and carrying the qualified names of the elements involved. When the
// traced context is an active state machine its id and leaf state are added.
// Values passed to the returned end function are recorded on the span; an
// error marks it failed.
func Trace(tracer trace.Tracer) func(ctx context.Context, step string, elements ...embedded.Element) func(...any) {
	if tracer == nil {
		tracer = NewProvider().Tracer(Name)
	}
	return func(ctx context.Context, step string, elements ...embedded.Element) func(...any) {
		names := make([]string, 0, len(elements))
		for _, element := range elements {
			if named, ok := element.(embedded.NamedElement); ok {
				names = append(names, named.QualifiedName())
			}
		}
		attributes := []attribute.KeyValue{KeyElements.StringSlice(names)}
		if active, ok := ctx.(embedded.Active); ok {
			attributes = append(attributes, KeyId.String(active.Id()), KeyState.String(active.State()))
		}
		_, span := tracer.Start(ctx, step, trace.WithAttributes(attributes...))
		return func(results ...any) {
			defer span.End()
			for _, result := range results {
				if err, ok := result.(error); ok && err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					continue
				}
				span.AddEvent(fmt.Sprint(result))
			}
		}
	}
}
