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

package httpexchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

type mockManager struct {
	app       core.Application
	createErr error
	destroyed []string
}

func (m *mockManager) CreateSession(ctx context.Context, entrypointName, clientID, path string) (*core.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	sessCtx, cancel := context.WithCancel(ctx)
	return &core.Session{
		ID:          "sess-1",
		ClientID:    clientID,
		Path:        path,
		Route:       &core.Route{Source: entrypointName, Target: "test"},
		Application: m.app,
		Context:     sessCtx,
		Cancel:      cancel,
	}, nil
}

func (m *mockManager) DestroySession(sessionID string) error {
	m.destroyed = append(m.destroyed, sessionID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEntrypointServesExchange(t *testing.T) {
	var seen core.Scope
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		seen = scope
		ev, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		body := ev.(core.ExchangeChunk).Body
		conn.Send(ctx, core.ResponseStart{Status: 201, Headers: []core.Header{
			core.TextHeader("content-type", "text/plain"),
			core.TextHeader("x-path", scope.Path()),
		}})
		conn.Send(ctx, core.ResponseChunk{Body: []byte("got:"), More: true})
		return conn.Send(ctx, core.ResponseChunk{Body: body})
	})

	mgr := &mockManager{app: app}
	e := New("http-in", 0, 0, quietLogger(), nil)
	srv := httptest.NewServer(e.Handler(mgr))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/items?x=1", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if string(body) != "got:payload" {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.Header.Get("X-Path") != "/items" {
		t.Fatalf("unexpected x-path %q", resp.Header.Get("X-Path"))
	}
	if seen.Method() != "POST" || string(seen.QueryString()) != "x=1" {
		t.Fatalf("unexpected scope method=%s query=%s", seen.Method(), seen.QueryString())
	}
	if host, ok := seen.Header("host"); !ok || host == "" {
		t.Fatal("expected host header in scope")
	}
	if len(mgr.destroyed) != 1 {
		t.Fatalf("expected session to be destroyed, got %v", mgr.destroyed)
	}
}

func TestEntrypointProtocolViolationIsBadGateway(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		return conn.Send(ctx, core.ResponseChunk{Body: []byte("no start")})
	})
	e := New("http-in", 0, 0, quietLogger(), nil)
	srv := httptest.NewServer(e.Handler(&mockManager{app: app}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestEntrypointBodyLimit(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		t.Error("application must not run for an oversized body")
		return nil
	})
	e := New("http-in", 0, 4, quietLogger(), nil)
	srv := httptest.NewServer(e.Handler(&mockManager{app: app}))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "text/plain", strings.NewReader("too long"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestEntrypointNoRoute(t *testing.T) {
	e := New("http-in", 0, 0, quietLogger(), nil)
	srv := httptest.NewServer(e.Handler(&mockManager{createErr: core.ErrNoRoute}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
