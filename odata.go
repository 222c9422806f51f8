// Package odata serves form submissions as a read-only OData v4 feed.
//
// A form's field tree becomes an entity model: the root entity set
// Submissions holds one row per submission, and every repeat group becomes
// its own entity set whose rows link back to their parent row. Clients such
// as spreadsheet tools and BI software read the feed through the service
// document, the $metadata document and the collections, with $top, $skip,
// $count, $filter, $select and $wkt.
//
// # Sources
//
// A FormSource supplies a form schema and its submissions. MemorySource serves
// a fixed list; the store package in this module serves forms kept in SQLite
// or PostgreSQL and pushes $filter down into SQL.
//
//	service, err := odata.NewService(odata.ServiceConfig{DefaultMaxTop: 1000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mux.Handle("/forms/simple.svc/", service.Handler(src))
//
// Handlers derive the service root from the request URL up to and including
// the segment ending in ".svc". Mounts that rewrite paths set the root
// explicitly with WithServiceRoot.
//
// # Configuration
//
// Setters such as SetLogger, SetObservability, SetDefaultMaxTop and
// SetGeoEncoding apply to handlers already created as well as future ones.
// Call them before serving requests.
package odata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-odata-forms/internal/handlers"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/observability"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/source"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

type (
	// Form is a single form version's field schema.
	Form = metadata.Form
	// Field is one node of a form's field tree.
	Field = metadata.Field
	// FieldKind distinguishes leaves, groups and repeats.
	FieldKind = metadata.FieldKind
	// Submission is one form submission.
	Submission = submission.Submission
	// SystemFields is the per-submission metadata exposed under __system.
	SystemFields = submission.System
	// ContentState describes how much of a submission's content is shown.
	ContentState = submission.ContentState
	// FormSource supplies a form and its submissions to a feed.
	FormSource = source.Source
	// SourceRequest narrows the submissions a FormSource returns.
	SourceRequest = source.Request
	// MemorySource is a FormSource backed by a fixed submission list.
	MemorySource = source.Memory
)

const (
	FieldLeaf   = metadata.FieldLeaf
	FieldGroup  = metadata.FieldGroup
	FieldRepeat = metadata.FieldRepeat

	ContentNormal   = submission.ContentNormal
	ContentDegraded = submission.ContentDegraded
	ContentRootOnly = submission.ContentRootOnly
)

// ErrSchemaUnavailable is returned by a FormSource that has no schema to
// serve. Feeds answer it with 404.
var ErrSchemaUnavailable = problem.ErrSchemaUnavailable

// ServiceConfig controls optional service behaviours.
type ServiceConfig struct {
	// Namespace prefixes the schema namespace of every form.
	// Defaults to DefaultNamespace.
	Namespace string

	// SchemaCacheSize bounds the number of compiled schemas kept in memory.
	// Defaults to DefaultSchemaCacheSize.
	SchemaCacheSize int

	// DefaultMaxTop caps collection pages when a request has no $top.
	// 0 leaves collections unpaged.
	DefaultMaxTop int
}

// DefaultNamespace is used when no explicit namespace is configured for the service.
const DefaultNamespace = metadata.DefaultNamespacePrefix

// DefaultSchemaCacheSize is the default number of compiled schemas cached.
const DefaultSchemaCacheSize = 256

// Service builds feed handlers for form sources and shares compiled schemas
// between them.
type Service struct {
	// namespace prefixes every compiled schema
	namespace string
	// schemas caches compiled schemas by form fingerprint
	schemas *lru.Cache[uint64, *metadata.Schema]
	// handlers holds every handler created by Handler
	handlers   []*handlers.FormHandler
	handlersMu sync.RWMutex
	// logger is used for structured logging throughout the service
	logger *slog.Logger
	// observability holds the observability configuration (tracing, metrics)
	observability *observability.Config
	// defaultMaxTop is the default maximum number of rows returned if no explicit $top is set
	defaultMaxTop *int
	// geoEncoding is the default GeoEncoding, accessed atomically
	geoEncoding int32
}

// NewService creates a service with cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	size := cfg.SchemaCacheSize
	if size <= 0 {
		size = DefaultSchemaCacheSize
	}
	schemas, err := lru.New[uint64, *metadata.Schema](size)
	if err != nil {
		return nil, fmt.Errorf("odata: failed to create schema cache: %w", err)
	}

	s := &Service{
		namespace: namespace,
		schemas:   schemas,
		logger:    slog.Default(),
	}
	if cfg.DefaultMaxTop > 0 {
		top := cfg.DefaultMaxTop
		s.defaultMaxTop = &top
	}
	return s, nil
}

// Handler returns the feed of src. The handler answers the service document
// at the service root, $metadata, and every entity set path below it.
func (s *Service) Handler(src FormSource) http.Handler {
	h := handlers.NewFormHandler(src, s.compileSchema)
	h.SetLogger(s.logger)
	h.SetObservability(s.observability)
	h.SetDefaultMaxTop(s.defaultMaxTop)
	h.SetDefaultWKT(s.GeoEncoding() == WKT)

	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.observability.Middleware(h).ServeHTTP(w, r)
	})
}

// compileSchema returns the compiled schema of form, reusing the cached
// schema of an identical form.
func (s *Service) compileSchema(ctx context.Context, form *metadata.Form) (*metadata.Schema, error) {
	fingerprint, err := metadata.Fingerprint(form)
	if err != nil {
		return nil, err
	}
	if schema, ok := s.schemas.Get(fingerprint); ok {
		s.observability.Metrics().RecordSchemaCache(ctx, true)
		return schema, nil
	}
	s.observability.Metrics().RecordSchemaCache(ctx, false)

	schema, err := metadata.NewSchema(form, s.namespace)
	if err != nil {
		return nil, err
	}
	s.schemas.Add(fingerprint, schema)
	s.logger.Debug("Compiled form schema", "form", form.ID, "version", form.Version, "entity_sets", len(schema.Entities))
	return schema, nil
}

// SetLogger sets a custom logger for the service.
// If logger is nil, slog.Default() is used.
//
// # Example
//
//	if err := service.SetLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil))); err != nil {
//	    log.Fatal(err)
//	}
func (s *Service) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger

	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	for _, handler := range s.handlers {
		handler.SetLogger(logger)
	}
	return nil
}

// ObservabilityConfig configures observability features (tracing, metrics) for the service.
// Providers are optional; when nil, the global OpenTelemetry providers are used.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer for distributed tracing.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter for metrics collection.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "odata-forms" if not specified.
	ServiceName string

	// ServiceVersion is reported in telemetry attributes.
	ServiceVersion string

	// EnableServerTiming enables the Server-Timing HTTP response header.
	// Feeds then report how long loading and shaping rows took.
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry-based observability for the service.
//
// When observability is configured:
//   - every request gets a span and is counted in the request metrics
//   - loading submissions gets a child span carrying the $filter text
//   - schema cache hits and misses are counted
//   - 5xx responses are recorded as span errors
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	defer tp.Shutdown(ctx)
//
//	service.SetObservability(odata.ObservabilityConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "forms-feed",
//	    ServiceVersion: "1.0.0",
//	})
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if s.logger != nil {
		opts = append(opts, observability.WithLogger(s.logger))
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	s.observability = obsCfg

	s.handlersMu.RLock()
	for _, handler := range s.handlers {
		handler.SetObservability(obsCfg)
	}
	s.handlersMu.RUnlock()

	s.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"server_timing_enabled", cfg.EnableServerTiming,
		"service_name", cfg.ServiceName,
	)
	return nil
}

// Observability returns the current observability configuration.
// Returns nil if observability is not configured.
func (s *Service) Observability() *observability.Config {
	return s.observability
}

// SetDefaultMaxTop sets the default maximum number of rows returned when a
// request has no $top. Pass 0 or a negative value to remove the default limit.
//
// # Example
//
//	if err := service.SetDefaultMaxTop(100); err != nil {
//	    log.Fatal(err)
//	}
func (s *Service) SetDefaultMaxTop(maxTop int) error {
	if maxTop <= 0 {
		s.defaultMaxTop = nil
		s.logger.Debug("Removed default max top for service")
	} else {
		s.defaultMaxTop = &maxTop
		s.logger.Debug("Set default max top for service", "maxTop", maxTop)
	}

	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	for _, handler := range s.handlers {
		handler.SetDefaultMaxTop(s.defaultMaxTop)
	}
	return nil
}

// WithServiceRoot returns a context that makes feed handlers use root as
// the service root instead of deriving it from the request URL. Mounts that
// strip or rewrite path prefixes use it to keep generated links absolute.
func WithServiceRoot(ctx context.Context, root string) context.Context {
	return handlers.WithServiceRoot(ctx, root)
}

// ServerTimingMetric represents a Server-Timing metric that tracks the duration
// of an operation for the Server-Timing HTTP response header.
// Use StartServerTiming or StartServerTimingWithDesc to create metrics.
type ServerTimingMetric = observability.ServerTimingMetric

// StartServerTiming starts a Server-Timing metric with the given name.
// It appears in the Server-Timing response header when EnableServerTiming is
// true; otherwise the returned metric is a no-op that is safe to Stop.
//
// Example:
//
//	func (src *mySource) Submissions(ctx context.Context, req odata.SourceRequest) ([]*odata.Submission, error) {
//	    metric := odata.StartServerTiming(ctx, "decrypt")
//	    defer metric.Stop()
//	    // decrypt submissions
//	}
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return observability.StartServerTiming(ctx, name)
}

// StartServerTimingWithDesc starts a Server-Timing metric with a name and description.
// The description provides additional context in browser developer tools.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	return observability.StartServerTimingWithDesc(ctx, name, description)
}
