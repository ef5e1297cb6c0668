package telemetry_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-rxhsm"
	"github.com/stateforward/go-rxhsm/pkg/telemetry"
	"github.com/stateforward/go-rxhsm/stream"
)

type recordingTracer struct {
	trace.Tracer
	mutex sync.Mutex
	spans []*recordingSpan
}

func (tracer *recordingTracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	config := trace.NewSpanStartConfig(options...)
	span := &recordingSpan{name: name, attributes: config.Attributes()}
	tracer.mutex.Lock()
	defer tracer.mutex.Unlock()
	tracer.spans = append(tracer.spans, span)
	return ctx, span
}

func (tracer *recordingTracer) named(name string) []*recordingSpan {
	tracer.mutex.Lock()
	defer tracer.mutex.Unlock()
	spans := []*recordingSpan{}
	for _, span := range tracer.spans {
		if span.name == name {
			spans = append(spans, span)
		}
	}
	return spans
}

type recordingSpan struct {
	trace.Span
	name       string
	attributes []attribute.KeyValue
	events     []string
	errors     []error
	status     codes.Code
	ended      bool
}

func (span *recordingSpan) End(options ...trace.SpanEndOption) {
	span.ended = true
}

func (span *recordingSpan) AddEvent(name string, options ...trace.EventOption) {
	span.events = append(span.events, name)
}

func (span *recordingSpan) RecordError(err error, options ...trace.EventOption) {
	span.errors = append(span.errors, err)
}

func (span *recordingSpan) SetStatus(code codes.Code, description string) {
	span.status = code
}

func (span *recordingSpan) attribute(key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTraceWithoutTracer(t *testing.T) {
	hook := telemetry.Trace(nil)
	require.NotNil(t, hook)
	assert.NotPanics(t, func() {
		hook(context.Background(), "step")(errors.New("failed"), "done")
	})
	tracer := telemetry.NewProvider().Tracer(telemetry.Name)
	_, started := tracer.Start(context.Background(), "noop")
	assert.False(t, started.IsRecording())
	assert.NotPanics(t, func() {
		started.AddLink(trace.Link{})
		started.SetAttributes(telemetry.KeyState.String("/s"))
		started.End()
	})
}

func TestTraceRecordsResults(t *testing.T) {
	tracer := &recordingTracer{}
	failure := errors.New("failed")
	telemetry.Trace(tracer)(context.Background(), "step")(failure, "done")

	spans := tracer.named("step")
	require.Len(t, spans, 1)
	assert.True(t, spans[0].ended)
	assert.Equal(t, codes.Error, spans[0].status)
	assert.Equal(t, []error{failure}, spans[0].errors)
	assert.Equal(t, []string{"done"}, spans[0].events)
	_, ok := spans[0].attribute(telemetry.KeyId)
	assert.False(t, ok)
}

func TestTraceStateMachineSteps(t *testing.T) {
	next := stream.NewSubject[string]()
	model := hsm.MustDefine("traced",
		hsm.State("s1",
			hsm.Entry(func(ctx context.Context) {}),
			hsm.Transition(next, hsm.Target("/s2")),
		),
		hsm.State("s2"),
		hsm.Initial("s1"),
	)
	tracer := &recordingTracer{}
	sm, err := hsm.New(context.Background(), model, hsm.WithTrace(telemetry.Trace(tracer)))
	require.NoError(t, err)
	require.NoError(t, sm.Activate())

	activations := tracer.named("Activate")
	require.Len(t, activations, 1)
	assert.True(t, activations[0].ended)
	id, ok := activations[0].attribute(telemetry.KeyId)
	require.True(t, ok)
	assert.Equal(t, sm.Id(), id.AsString())
	elements, ok := activations[0].attribute(telemetry.KeyElements)
	require.True(t, ok)
	assert.Equal(t, []string{"/s1"}, elements.AsStringSlice())

	entered := tracer.named("enter")
	require.Len(t, entered, 1)
	executed := tracer.named("execute")
	require.Len(t, executed, 1)
	entries, _ := executed[0].attribute(telemetry.KeyElements)
	assert.Equal(t, []string{"/s1/.entry"}, entries.AsStringSlice())

	next.Emit("go")
	transitions := tracer.named("transition")
	require.Len(t, transitions, 1)
	state, ok := transitions[0].attribute(telemetry.KeyState)
	require.True(t, ok)
	assert.Equal(t, "/s1", state.AsString())
	assert.Equal(t, "/s2", sm.State())
	exited := tracer.named("exit")
	require.Len(t, exited, 1)
	names, _ := exited[0].attribute(telemetry.KeyElements)
	assert.True(t, slices.Contains(names.AsStringSlice(), "/s1"))
}
