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

package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegister(t *testing.T) {
	cfg := &config.Config{
		Entrypoints: []config.EntrypointConfig{
			{Name: "ws", Type: "websocket", Port: 9001},
			{Name: "api", Type: "http", Port: 9002},
			{Name: "feed", Type: "http_stream", Port: 9003},
			{Name: "tcp", Type: "framed", Port: 9004, Codec: "json"},
		},
		Endpoints: []config.EndpointConfig{
			{Name: "cache", Type: "redis", Config: map[string]string{"addr": "localhost:6379"}},
			{Name: "broken", Type: "kafka", Config: map[string]string{}},
		},
		Applications: []config.ApplicationConfig{
			{Name: "echo", Type: "echo"},
			{Name: "pubsub", Type: "relay", Endpoint: "cache"},
		},
	}
	logger := quietLogger()
	reg := plugins.NewRegistry(logger)

	registerEndpoints(cfg, reg, logger)
	if _, ok := reg.Endpoint("cache"); !ok {
		t.Fatal("expected redis endpoint")
	}
	if _, ok := reg.Endpoint("broken"); ok {
		t.Fatal("endpoint with bad config must be skipped")
	}

	if err := registerApplications(cfg, reg, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Application("pubsub"); !ok {
		t.Fatal("expected relay application")
	}
	if reg.IsApplicationAvailable("pubsub") {
		t.Fatal("relay must be unavailable until its endpoint connects")
	}
	if !reg.IsApplicationAvailable("echo") {
		t.Fatal("echo has no endpoint and must be available")
	}

	if err := registerEntrypoints(cfg, reg, logger, logging.NewEventTracer(logger)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(reg.Entrypoints()); n != 4 {
		t.Fatalf("expected 4 entrypoints, got %d", n)
	}
}

func TestRegisterErrors(t *testing.T) {
	logger := quietLogger()
	reg := plugins.NewRegistry(logger)

	cfg := &config.Config{
		Applications: []config.ApplicationConfig{
			{Name: "orphan", Type: "relay", Endpoint: "missing"},
			{Name: "odd", Type: "teapot"},
		},
		Entrypoints: []config.EntrypointConfig{{Name: "tcp", Type: "framed", Codec: "xml"}},
	}
	err := registerApplications(cfg, reg, logger)
	if !errors.Is(err, core.ErrEndpointNotFound) {
		t.Fatalf("expected endpoint not found, got %v", err)
	}
	if err := registerEntrypoints(cfg, reg, logger, nil); err == nil {
		t.Fatal("expected codec error")
	}
}
