// Package observability wires OpenTelemetry tracing and metrics and the
// Server-Timing response header into the feed handlers.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	servertiming "github.com/mitchellh/go-server-timing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultServiceName is used when no service name is configured.
	DefaultServiceName  = "odata-forms"
	instrumentationName = "github.com/nlstn/go-odata-forms"
)

// Config holds the observability setup shared by all handlers of a service.
type Config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	serviceVersion string
	serverTiming   bool
	logger         *slog.Logger

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.meterProvider = mp }
}

// WithServiceName sets the service name reported on spans.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the instrumentation version.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithLogger sets the logger used for instrumentation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithServerTiming enables the Server-Timing response header.
func WithServerTiming() Option {
	return func(c *Config) { c.serverTiming = true }
}

// NewConfig builds a Config from opts. Call Initialize before use.
func NewConfig(opts ...Option) *Config {
	c := &Config{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize creates the tracer and the metric instruments.
func (c *Config) Initialize() error {
	c.tracer = newTracer(c.tracerProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(c.serviceVersion)), c.serviceName)

	metrics, err := newMetrics(c.meterProvider.Meter(instrumentationName,
		metric.WithInstrumentationVersion(c.serviceVersion)))
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}
	c.metrics = metrics
	return nil
}

// Tracer returns the configured tracer. It is nil-safe.
func (c *Config) Tracer() *Tracer {
	if c == nil {
		return nil
	}
	return c.tracer
}

// Metrics returns the configured instruments. It is nil-safe.
func (c *Config) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

// ServerTimingEnabled reports whether the Server-Timing header is written.
func (c *Config) ServerTimingEnabled() bool {
	return c != nil && c.serverTiming
}

// Middleware wraps next with the Server-Timing middleware when enabled.
func (c *Config) Middleware(next http.Handler) http.Handler {
	if !c.ServerTimingEnabled() {
		return next
	}
	return servertiming.Middleware(next, nil)
}
