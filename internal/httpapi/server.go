package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blustick/internal/auth"
	"blustick/internal/bootstrap/config"
	"blustick/internal/bootstrap/logging"
	"blustick/internal/errs"
)

type Server struct {
	cfg      config.HTTPConfig
	svc      DetectionService
	verifier *auth.Verifier
}

func NewServer(cfg config.HTTPConfig, svc DetectionService, verifier *auth.Verifier) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		verifier: verifier,
	}
}

// Handler builds the chi router. Every detection route sits behind the auth
// middleware; /healthz and /metrics do not.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(s.verifier))

		r.Post("/detections/batch", s.handleIngestBatch)
		r.Get("/events/{eventID}/devices", s.handleEventDevices)
		r.Get("/events/{eventID}/devices/{mac}/detections", s.handleEventMacDetections)
		r.Get("/devices", s.handleAllDevices)
		r.Get("/devices/{mac}/detections", s.handleMacDetections)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "httpapi"))

	server := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(logCtx, "http server started", slog.String("addr", s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error(logCtx, "http server shutdown failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "shutdown http server")
		}
		logging.Info(logCtx, "http server stopped")
		return nil
	case err := <-errCh:
		if err != nil {
			logging.Error(logCtx, "http server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve http")
		}
		return nil
	}
}
