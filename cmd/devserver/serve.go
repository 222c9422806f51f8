package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	odata "github.com/nlstn/go-odata-forms"
	"github.com/nlstn/go-odata-forms/internal/store"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(cfg *config) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OData server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg)
		},
	}
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", getEnv(envAddr, ":8080"), "listen address")
	flags.StringVar(&cfg.Fixture, "fixture", getEnv(envFixture, ""), "JSON fixture imported before serving")
	flags.IntVar(&cfg.DefaultMaxTop, "default-max-top", getEnvInt(envDefaultMaxTop, 0), "page size for requests without $top (0 disables)")
	flags.StringVar(&cfg.GeoEncoding, "geo-encoding", getEnv(envGeoEncoding, "geojson"), "default geo rendering (geojson or wkt)")
	flags.BoolVar(&cfg.ServerTiming, "server-timing", getEnvBool(envServerTiming, false), "write Server-Timing response headers")
	return serveCmd
}

func runServer(ctx context.Context, cfg *config) error {
	logger := slog.Default()

	st, err := store.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()
	st.SetLogger(logger)

	if cfg.Fixture != "" {
		if _, err := importFixture(ctx, st, cfg.Fixture); err != nil {
			return err
		}
	}

	service, err := newService(cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      newRouter(st, service),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Addr, "dialect", st.Dialect())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed to start", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}
	logger.Info("Server exited")
	return nil
}

func newService(cfg *config, logger *slog.Logger) (*odata.Service, error) {
	service, err := odata.NewService(odata.ServiceConfig{DefaultMaxTop: cfg.DefaultMaxTop})
	if err != nil {
		return nil, err
	}
	if err := service.SetLogger(logger); err != nil {
		return nil, err
	}
	encoding, err := odata.ParseGeoEncoding(cfg.GeoEncoding)
	if err != nil {
		return nil, err
	}
	if err := service.SetGeoEncoding(encoding); err != nil {
		return nil, err
	}
	err = service.SetObservability(odata.ObservabilityConfig{
		ServiceName:        "odata-devserver",
		EnableServerTiming: cfg.ServerTiming,
	})
	if err != nil {
		return nil, err
	}
	return service, nil
}

// newRouter mounts the published feed of every stored form at
// /v1/projects/{projectID}/forms/{xmlFormId}.svc and its draft at
// /v1/projects/{projectID}/forms/{xmlFormId}/draft.svc.
func newRouter(st *store.Store, service *odata.Service) http.Handler {
	feeds := &feedRegistry{store: st, service: service, feeds: make(map[store.FormKey]http.Handler)}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	mux.Route("/v1/projects/{projectID}/forms", func(r chi.Router) {
		r.Handle("/{form}", feeds.published())
		r.Handle("/{form}/*", feeds.published())
		r.Handle("/{form}/draft.svc", feeds.draft())
		r.Handle("/{form}/draft.svc/*", feeds.draft())
	})
	return mux
}

// feedRegistry creates one feed handler per form key and reuses it.
type feedRegistry struct {
	store   *store.Store
	service *odata.Service

	mu    sync.Mutex
	feeds map[store.FormKey]http.Handler
}

func (f *feedRegistry) published() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		formSvc, err := url.PathUnescape(chi.URLParam(r, "form"))
		formID, ok := strings.CutSuffix(formSvc, ".svc")
		if err != nil || !ok || formID == "" {
			http.NotFound(w, r)
			return
		}
		f.serve(w, r, formID, false)
	})
}

func (f *feedRegistry) draft() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		formID, err := url.PathUnescape(chi.URLParam(r, "form"))
		if err != nil || formID == "" {
			http.NotFound(w, r)
			return
		}
		f.serve(w, r, formID, true)
	})
}

func (f *feedRegistry) serve(w http.ResponseWriter, r *http.Request, formID string, draft bool) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	key := store.FormKey{ProjectID: projectID, XMLFormID: formID, Draft: draft}
	f.handler(key).ServeHTTP(w, r)
}

func (f *feedRegistry) handler(key store.FormKey) http.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.feeds[key]
	if !ok {
		h = f.service.Handler(f.store.Source(key))
		f.feeds[key] = h
	}
	return h
}
