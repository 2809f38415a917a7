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

// Package api exposes the monitor over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bearslyricattack/CompliK/portkill/internal/core/monitor"
	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/sirupsen/logrus"
)

// MonitorController is the part of the monitor the API drives.
type MonitorController interface {
	Poll(sinceVersion uint64) monitor.Update
	RequestKill(itemID string) error
	RequestKillPID(pid int) error
	RequestKillAll() error
	MarkInteraction()
	KillInFlight() bool
}

// Handler serves the API routes.
type Handler struct {
	controller MonitorController
}

// NewHandler creates a handler backed by controller.
func NewHandler(controller MonitorController) *Handler {
	return &Handler{controller: controller}
}

// SnapshotHandler returns the published view. since is the last version the
// client saw, the response sets rebuild when a newer one exists.
func (h *Handler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}

	update := h.controller.Poll(since)
	legacy.L.WithFields(logrus.Fields{
		"version": update.Version,
		"count":   update.Snapshot.Len(),
		"remote":  r.RemoteAddr,
	}).Debug("API: Returning snapshot")
	writeJSON(w, http.StatusOK, update)
}

// KillHandler requests a kill by item id or pid. The kill runs in the
// background, so success is 202.
func (h *Handler) KillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.controller.MarkInteraction()

	query := r.URL.Query()
	item, rawPID := query.Get("item"), query.Get("pid")

	var err error
	switch {
	case item != "" && rawPID != "":
		http.Error(w, "specify either item or pid", http.StatusBadRequest)
		return
	case item != "":
		err = h.controller.RequestKill(item)
	case rawPID != "":
		pid, convErr := strconv.Atoi(rawPID)
		if convErr != nil {
			http.Error(w, "invalid pid", http.StatusBadRequest)
			return
		}
		err = h.controller.RequestKillPID(pid)
	default:
		http.Error(w, "item or pid is required", http.StatusBadRequest)
		return
	}
	h.respondKill(w, r, err)
}

// KillAllHandler requests a bulk kill over the watched ports.
func (h *Handler) KillAllHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.controller.MarkInteraction()
	h.respondKill(w, r, h.controller.RequestKillAll())
}

func (h *Handler) respondKill(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := legacy.L.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
		"remote": r.RemoteAddr,
	})
	if err != nil {
		entry.WithError(err).Warn("API: Kill request rejected")
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	entry.Info("API: Kill request accepted")
	writeJSON(w, status, map[string]string{"status": "accepted"})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, monitor.ErrKillInFlight):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrInvalidPID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HealthHandler reports liveness and whether a kill is running.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"kill_in_flight": h.controller.KillInFlight(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		legacy.L.WithError(err).Error("Failed to encode API response")
	}
}
