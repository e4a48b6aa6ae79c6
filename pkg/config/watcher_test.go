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
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/routing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	table := routing.NewTable()
	w := NewWatcher(path, table, quietLogger())

	if !w.Reload() {
		t.Fatal("expected reload to succeed")
	}
	if _, ok := table.Lookup("ws-in", "/chat/room"); !ok {
		t.Fatal("expected chat route after reload")
	}
}

func TestWatcherReloadKeepsTableOnError(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	table := routing.NewTable()
	w := NewWatcher(path, table, quietLogger())
	w.Reload()

	os.WriteFile(path, []byte("routes: ["), 0o644)
	if w.Reload() {
		t.Fatal("expected reload to fail")
	}
	if table.Len() != 2 {
		t.Fatalf("expected previous routes to survive, got %d", table.Len())
	}
}

func TestWatcherPicksUpFileChange(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	table := routing.NewTable()
	w := NewWatcher(path, table, quietLogger())
	w.debounce = 10 * time.Millisecond

	reloaded := make(chan *Config, 4)
	w.OnReload(func(c *Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	updated := `
entrypoints:
  - name: ws-in
    type: websocket
applications:
  - name: echo
    type: echo
routes:
  - source: ws-in
    target: echo
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Routes) != 1 {
			t.Fatalf("expected 1 route, got %d", len(cfg.Routes))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("config change not observed")
	}
	if r, ok := table.Lookup("ws-in", "/"); !ok || r.Target != "echo" {
		t.Fatalf("expected echo route, got %v", r)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected watch error: %v", err)
	}
}
