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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
log_level: debug
entrypoints:
  - name: ws-in
    type: websocket
    port: 8066
  - name: framed-in
    type: framed
    port: 9000
    codec: json
    max_body: 1024
applications:
  - name: chat-relay
    type: relay
    endpoint: kafka-main
  - name: echo
    type: echo
endpoints:
  - name: kafka-main
    type: kafka
    config:
      brokers: "localhost:9092"
routes:
  - source: ws-in
    target: chat-relay
    path_prefix: /chat
  - source: framed-in
    target: echo
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Entrypoints) != 2 {
		t.Fatalf("expected 2 entrypoints, got %d", len(cfg.Entrypoints))
	}
	framed := cfg.Entrypoints[1]
	if framed.Codec != "json" || framed.MaxBody != 1024 {
		t.Fatalf("unexpected framed entrypoint %+v", framed)
	}
	if len(cfg.Applications) != 2 || cfg.Applications[0].Endpoint != "kafka-main" {
		t.Fatalf("unexpected applications %+v", cfg.Applications)
	}
	if cfg.Endpoints[0].Config["brokers"] != "localhost:9092" {
		t.Fatalf("unexpected endpoint config %+v", cfg.Endpoints[0])
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.Level())
	}

	routes := cfg.RouteList()
	if len(routes) != 2 || routes[0].PathPrefix != "/chat" || routes[0].Target != "chat-relay" {
		t.Fatalf("unexpected routes %+v", routes)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "entrypoints: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateReferences(t *testing.T) {
	content := `
entrypoints:
  - name: ws-in
    type: websocket
applications:
  - name: relay
    type: relay
    endpoint: missing-endpoint
routes:
  - source: nowhere
    target: relay
  - source: ws-in
    target: missing-app
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"missing-endpoint", "unknown entrypoint", "unknown application"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidateDuplicates(t *testing.T) {
	cfg := &Config{
		Entrypoints: []EntrypointConfig{{Name: "a"}, {Name: "a"}},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate entrypoint") {
		t.Fatalf("expected duplicate entrypoint error, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/from/env.yaml")
	if got := ResolvePath("/from/flag.yaml"); got != "/from/flag.yaml" {
		t.Fatalf("flag must win, got %s", got)
	}
	if got := ResolvePath(""); got != "/from/env.yaml" {
		t.Fatalf("expected env path, got %s", got)
	}
	t.Setenv("CONFIG_PATH", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("expected default path, got %s", got)
	}
}
