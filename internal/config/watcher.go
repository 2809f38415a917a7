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

package config

import (
	"context"
	"path/filepath"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// UpdateHandler is called with every successfully reloaded configuration.
type UpdateHandler func(*models.Config)

// Watcher reloads the configuration file when its content changes.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	handler UpdateHandler
}

// NewWatcher creates a new configuration file watcher
func NewWatcher(loader *Loader, handler UpdateHandler) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		loader:  loader,
		watcher: fsWatcher,
		handler: handler,
	}, nil
}

// Start watches the directory holding the file, editors often replace the
// file instead of writing it in place.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.loader.GetConfigDir()); err != nil {
		return err
	}
	legacy.L.WithField("path", w.loader.GetConfigPath()).Info("Started monitoring configuration file")
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the configuration watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	target := filepath.Clean(w.loader.GetConfigPath())
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleFileChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			legacy.L.WithField("error", err).Error("File watcher error")
		}
	}
}

func (w *Watcher) handleFileChange() {
	changed, err := w.loader.HasChanged()
	if err != nil {
		legacy.L.WithError(err).Error("Failed to check configuration file changes")
		return
	}
	if !changed {
		return
	}

	legacy.L.WithFields(logrus.Fields{
		"file": w.loader.GetConfigPath(),
	}).Info("Configuration file changed, reloading")

	newConfig, err := w.loader.Load()
	if err != nil {
		legacy.L.WithField("error", err).Error("Reload failed, keeping the previous configuration")
		return
	}
	if w.handler != nil {
		w.handler(newConfig)
	}
}
