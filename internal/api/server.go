// Copyright 2025 CompliK Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/sirupsen/logrus"
)

var endpoints = []string{"/api/snapshot", "/api/kill", "/api/kill-all", "/health"}

// Server is the API HTTP server.
type Server struct {
	httpServer *http.Server
	port       int
}

// NewServer creates an API server for controller listening on port.
func NewServer(controller MonitorController, port int) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      NewMux(NewHandler(controller)),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		port: port,
	}
}

// NewMux registers the routes of h.
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", h.SnapshotHandler)
	mux.HandleFunc("/api/kill", h.KillHandler)
	mux.HandleFunc("/api/kill-all", h.KillAllHandler)
	mux.HandleFunc("/health", h.HealthHandler)
	return mux
}

// Start listens in the background. It fails if the listener errors within
// the first 100ms.
func (s *Server) Start(ctx context.Context) error {
	legacy.L.WithFields(logrus.Fields{
		"port":      s.port,
		"endpoints": endpoints,
	}).Info("Starting API server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start API server: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		legacy.L.WithField("port", s.port).Info("API server started")
		return nil
	}
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	legacy.L.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}
