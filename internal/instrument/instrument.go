package instrument

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys
type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter starts timed spans for one trace.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
}

// Span is a timed operation. End emits it.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity string)
	TraceID() string
	SpanID() string
}

func newUUID() string {
	return uuid.New().String()
}

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// WithUserID records the authenticated user for spans started later.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func getUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// LogInstrumenter writes each finished span as one log event.
type LogInstrumenter struct {
	log   zerolog.Logger
	level zerolog.Level
}

// NewLogInstrumenter emits spans on log at the given level.
func NewLogInstrumenter(log zerolog.Logger, level zerolog.Level) *LogInstrumenter {
	return &LogInstrumenter{log: log, level: level}
}

// StartSpan creates a child of the span recorded in ctx, if any, and returns
// a context that parents later spans to the new one.
func (i *LogInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	span := &logSpan{
		log:          i.log,
		level:        i.level,
		traceID:      GetTraceID(ctx),
		spanID:       newUUID(),
		parentSpanID: getParentSpanID(ctx),
		userID:       getUserID(ctx),
		source:       source,
		component:    component,
		action:       action,
		start:        time.Now(),
		metadata:     make(map[string]any),
	}
	return withParentSpanID(ctx, span.spanID), span
}

type logSpan struct {
	log          zerolog.Logger
	level        zerolog.Level
	traceID      string
	spanID       string
	parentSpanID string
	userID       string
	source       string
	component    string
	action       string
	entity       string
	status       string
	start        time.Time
	metadata     map[string]any
	ended        bool
}

func (s *logSpan) End() {
	if s.ended {
		return
	}
	s.ended = true
	ev := s.log.WithLevel(s.level).
		Str("trace_id", s.traceID).
		Str("span_id", s.spanID).
		Str("source", s.source).
		Str("component", s.component).
		Str("action", s.action).
		Float64("duration_ms", float64(time.Since(s.start).Microseconds())/1000)
	if s.parentSpanID != "" {
		ev = ev.Str("parent_span_id", s.parentSpanID)
	}
	if s.userID != "" {
		ev = ev.Str("user_id", s.userID)
	}
	if s.entity != "" {
		ev = ev.Str("entity", s.entity)
	}
	if s.status != "" {
		ev = ev.Str("status", s.status)
	}
	if len(s.metadata) > 0 {
		ev = ev.Interface("metadata", s.metadata)
	}
	ev.Msg("span")
}

func (s *logSpan) SetStatus(status string)           { s.status = status }
func (s *logSpan) SetMetadata(key string, value any) { s.metadata[key] = value }
func (s *logSpan) SetEntity(entity string)           { s.entity = entity }
func (s *logSpan) TraceID() string                   { return s.traceID }
func (s *logSpan) SpanID() string                    { return s.spanID }
