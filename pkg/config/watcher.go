// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/routing"
)

// Watcher reloads the routes of the config file whenever it changes and
// swaps them into the routing table in one step. Entrypoints, endpoints
// and applications are only read at startup.
type Watcher struct {
	path     string
	table    *routing.Table
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*Config)
}

func NewWatcher(path string, table *routing.Table, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		table:    table,
		debounce: 200 * time.Millisecond,
		logger:   logger.With("component", "config-watcher"),
	}
}

// OnReload registers fn to run after each successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.onReload = fn
}

// Watch blocks until ctx is done. The directory is watched rather than the
// file so that editors replacing the file by rename are noticed.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	target := filepath.Clean(w.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", "path", w.path, "error", err)

		case <-fire:
			fire = nil
			w.Reload()
		}
	}
}

// Reload reads the file once and applies its routes.
func (w *Watcher) Reload() bool {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return false
	}
	routes := cfg.RouteList()
	w.table.ReplaceAll(routes)
	w.logger.Info("routes reloaded", "count", len(routes))
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return true
}
