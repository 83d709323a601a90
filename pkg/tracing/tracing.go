// Package tracing wires OpenTelemetry distributed tracing into the
// service, exported via OTLP. internal/tracingobs builds on it to open one
// span per Supervisor.Execute call, with a single child span named
// "validate".
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures distributed tracing.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	Endpoint       string            `yaml:"endpoint"`
	Insecure       bool              `yaml:"insecure"`
	SampleRate     float64           `yaml:"sample_rate"`
	BatchTimeout   time.Duration     `yaml:"batch_timeout"`
	MaxBatchSize   int               `yaml:"max_batch_size"`
	Headers        map[string]string `yaml:"headers"`
}

// DefaultConfig returns conservative tracing defaults, disabled until an
// OTLP collector endpoint is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "pytrace",
		ServiceVersion: "v1.0.0",
		Environment:    "production",
		Endpoint:       "localhost:4318",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MaxBatchSize:   512,
		Headers:        make(map[string]string),
	}
}

// Manager owns the tracer provider and the tracer derived from it.
type Manager struct {
	config   Config
	logger   *logrus.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewManager builds a Manager. If tracing is disabled, the returned Manager
// hands out a no-op tracer so call sites never need a nil check.
func NewManager(config Config, logger *logrus.Logger) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, logger: logger, tracer: otel.Tracer("noop")}, nil
	}

	m := &Manager{config: config, logger: logger}
	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initialize() error {
	exporter, err := m.createExporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := m.createResource()
	if err != nil {
		return fmt.Errorf("failed to create trace resource: %w", err)
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(m.config.BatchTimeout),
			trace.WithMaxExportBatchSize(m.config.MaxBatchSize),
		),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRate)),
	)

	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	m.tracer = otel.Tracer(m.config.ServiceName)

	m.logger.WithFields(logrus.Fields{
		"service_name": m.config.ServiceName,
		"endpoint":     m.config.Endpoint,
		"sample_rate":  m.config.SampleRate,
	}).Info("distributed tracing initialized")
	return nil
}

func (m *Manager) createExporter() (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
	if m.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(m.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
	}
	return otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
}

func (m *Manager) createResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(m.config.ServiceName),
			semconv.ServiceVersion(m.config.ServiceVersion),
			semconv.DeploymentEnvironment(m.config.Environment),
		),
	)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (m *Manager) Tracer() oteltrace.Tracer { return m.tracer }

// Shutdown flushes and closes the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// Span wraps a context and its current span with convenience helpers for
// annotating execution steps.
type Span struct {
	ctx    context.Context
	span   oteltrace.Span
	tracer oteltrace.Tracer
}

// StartSpan starts a new span named operationName as a child of ctx.
func StartSpan(ctx context.Context, tracer oteltrace.Tracer, operationName string) *Span {
	ctx, span := tracer.Start(ctx, operationName)
	return &Span{ctx: ctx, span: span, tracer: tracer}
}

// Context returns the span-carrying context.
func (s *Span) Context() context.Context { return s.ctx }

// SetAttribute records a single attribute on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.span.SetAttributes(attr)
}

// SetError records an error on the span and marks its status accordingly.
func (s *Span) SetError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent records a named event on the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, oteltrace.WithAttributes(attrs...))
}

// End finalizes the span, marking it Ok unless SetError was already called.
func (s *Span) End() {
	s.span.End()
}

// Child starts a child span under the same tracer.
func (s *Span) Child(operationName string) *Span {
	return StartSpan(s.ctx, s.tracer, operationName)
}

// TraceID returns the span's trace ID, or "unknown" if absent.
func (s *Span) TraceID() string {
	if s.span.SpanContext().HasTraceID() {
		return s.span.SpanContext().TraceID().String()
	}
	return "unknown"
}

// Instrumented wraps a named operation so every invocation gets its own
// span with attributes for start time and duration.
type Instrumented struct {
	tracer oteltrace.Tracer
	name   string
}

// NewInstrumented creates an Instrumented wrapper for operation name.
func NewInstrumented(tracer oteltrace.Tracer, name string) *Instrumented {
	return &Instrumented{tracer: tracer, name: name}
}

// Execute runs f inside a span, recording its duration and any error.
func (i *Instrumented) Execute(ctx context.Context, f func(*Span) error) error {
	span := StartSpan(ctx, i.tracer, i.name)
	defer span.End()

	start := time.Now()
	span.SetAttribute("start_time", start.Format(time.RFC3339))

	err := f(span)

	span.SetAttribute("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		span.SetError(err)
		return err
	}
	span.span.SetStatus(codes.Ok, "completed")
	return nil
}

// HTTPMiddleware extracts an incoming trace context, starts a span per
// request, and injects the resulting trace context into the response.
func HTTPMiddleware(tracer oteltrace.Tracer, operationName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, operationName)
			defer span.End()

			span.SetAttributes(
				semconv.HTTPMethod(r.Method),
				semconv.HTTPTarget(r.URL.Path),
				semconv.UserAgentOriginal(r.UserAgent()),
				semconv.ClientAddress(r.RemoteAddr),
			)

			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractIDs returns the trace and span IDs carried by ctx, if any.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		spanID = span.SpanContext().SpanID().String()
	}
	return
}
