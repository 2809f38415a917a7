package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves the Prometheus metrics endpoint.
type Server struct {
	server *http.Server
	port   int
	path   string
}

// NewMetricsServer creates a metrics server on port, serving path.
func NewMetricsServer(port int, path string) *Server {
	if path == "" {
		path = models.DefaultMetricsPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		port: port,
		path: path,
	}
}

// NewMetricsServerFromConfig creates a server from the metrics section.
func NewMetricsServerFromConfig(cfg models.MetricsConfig) *Server {
	return NewMetricsServer(cfg.Port, cfg.Path)
}

// Start blocks serving until the server is stopped. A clean stop returns nil.
func (s *Server) Start() error {
	legacy.L.WithFields(logrus.Fields{
		"port": s.port,
		"path": s.path,
	}).Info("Starting Prometheus metrics server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithRetry retries Start, typically while the port is still held by a
// previous instance.
func (s *Server) StartWithRetry(ctx context.Context, maxRetries int, retryInterval time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := s.Start()
		if err == nil {
			return nil
		}

		legacy.L.WithFields(logrus.Fields{
			"attempt":     i + 1,
			"max_retries": maxRetries,
			"error":       err.Error(),
		}).Warn("Metrics server failed to start, retrying")

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}
	return fmt.Errorf("metrics server failed to start after %d attempts", maxRetries)
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	legacy.L.Info("Stopping Prometheus metrics server")
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, handy for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// GetMetricsURL returns the local scrape URL.
func (s *Server) GetMetricsURL() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
