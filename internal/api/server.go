// Package api serves the directory over HTTP. List endpoints answer with the
// pagination envelope the dashboard's remote-search dropdowns consume.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"

	"github.com/runger/fleetdash/internal/directory"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Server is the directory HTTP API.
type Server struct {
	svc     *directory.Service
	metrics *Metrics
	logger  *slog.Logger
	echo    *echo.Echo
}

// ServerConfig contains configuration options for the HTTP API.
type ServerConfig struct {
	// Service answers the lookups (required)
	Service *directory.Service

	// Metrics is optional; NewMetrics is used when nil
	Metrics *Metrics

	// Logger is the structured logger (optional, uses default if nil)
	Logger *slog.Logger
}

// NewServer builds the echo router.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil || cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		svc:     cfg.Service,
		metrics: metrics,
		logger:  logger.With("component", "api"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.NewWithConfig(s.logger, slogecho.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelInfo,
		ServerErrorLevel: slog.LevelError,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := e.Group("/api/v1")
	v1.GET("/:kind", s.list)
	v1.GET("/:kind/:id", s.get)

	s.echo = e
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api server starting", "addr", l.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown", "error", err)
		}
		<-errChan
		s.logger.Info("api server stopped")
		return nil
	case err := <-errChan:
		return err
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) list(c echo.Context) error {
	start := time.Now()
	kind, err := directory.ParseKind(c.Param("kind"))
	if err != nil {
		return s.fail(c, "unknown", "list", http.StatusNotFound, err)
	}

	page, err := intParam(c, "page", 1)
	if err != nil {
		return s.fail(c, kind, "list", http.StatusBadRequest, err)
	}
	perPage, err := intParam(c, "per_page", 0)
	if err != nil {
		return s.fail(c, kind, "list", http.StatusBadRequest, err)
	}

	env, err := s.svc.List(c.Request().Context(), kind, directory.ListParams{
		Search:  c.QueryParam("search"),
		Page:    page,
		PerPage: perPage,
		Status:  c.QueryParam(directory.FilterStatus),
		Owner:   c.QueryParam(directory.FilterOwner),
	})
	if err != nil {
		return s.fail(c, kind, "list", http.StatusInternalServerError, err)
	}

	s.metrics.PageItems.WithLabelValues(string(kind)).Observe(float64(len(env.Data.Items)))
	s.observe(kind, "list", http.StatusOK, start)
	return c.JSON(http.StatusOK, env)
}

func (s *Server) get(c echo.Context) error {
	start := time.Now()
	kind, err := directory.ParseKind(c.Param("kind"))
	if err != nil {
		return s.fail(c, "unknown", "get", http.StatusNotFound, err)
	}

	r, err := s.svc.Get(c.Request().Context(), kind, c.Param("id"))
	if errors.Is(err, directory.ErrNotFound) {
		return s.fail(c, kind, "get", http.StatusNotFound, err)
	}
	if err != nil {
		return s.fail(c, kind, "get", http.StatusInternalServerError, err)
	}

	s.observe(kind, "get", http.StatusOK, start)
	return c.JSON(http.StatusOK, map[string]any{"data": r})
}

func (s *Server) fail(c echo.Context, kind directory.Kind, endpoint string, code int, err error) error {
	s.metrics.Requests.WithLabelValues(string(kind), endpoint, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", kind, "endpoint", endpoint, "error", err)
		return c.JSON(code, errorResponse{Error: http.StatusText(code)})
	}
	return c.JSON(code, errorResponse{Error: err.Error()})
}

func (s *Server) observe(kind directory.Kind, endpoint string, code int, start time.Time) {
	s.metrics.Requests.WithLabelValues(string(kind), endpoint, strconv.Itoa(code)).Inc()
	s.metrics.Duration.WithLabelValues(string(kind), endpoint).Observe(time.Since(start).Seconds())
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}
