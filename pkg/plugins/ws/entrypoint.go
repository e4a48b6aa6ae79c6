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

package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

// Entrypoint serves every websocket connection through a StreamBridge.
type Entrypoint struct {
	name     string
	port     int
	upgrader websocket.Upgrader
	manager  core.SessionManager
	server   *http.Server
	logger   *slog.Logger
	tracer   *logging.EventTracer
	sessions sync.Map
}

func New(name string, port int, logger *slog.Logger, tracer *logging.EventTracer) *Entrypoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Entrypoint{
		name: name,
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("entrypoint", name),
		tracer: tracer,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "websocket" }

// Handler binds the entrypoint to manager and returns its HTTP handler.
func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleConnection)
	return mux
}

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", e.port),
		Handler: e.Handler(manager),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("websocket entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	e.sessions.Range(func(_, val any) bool {
		sess := val.(*core.Session)
		e.manager.DestroySession(sess.ID)
		return true
	})
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

func (e *Entrypoint) handleConnection(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	scope, err := core.NewStreamScope(r.URL.Path, core.RequestHeaderPairs(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	clientID := core.GenerateClientID(r)
	sess, err := e.manager.CreateSession(r.Context(), e.name, clientID, r.URL.Path)
	if err != nil {
		e.logger.Error("session creation failed", "client_id", clientID, "error", err)
		http.Error(w, "session creation failed", core.HTTPStatus(err))
		return
	}

	e.sessions.Store(sess.ID, sess)
	defer func() {
		e.sessions.Delete(sess.ID)
		e.manager.DestroySession(sess.ID)
		e.logger.Info("ws client disconnected", "client_id", clientID, "session_id", sess.ID)
	}()

	tr := newTransport(w, r, &e.upgrader, e.logger)
	b := bridge.NewStreamBridge(scope, tr,
		bridge.WithID(sess.ID),
		bridge.WithLogger(e.logger),
		bridge.WithTracer(logging.RouteTracer(e.tracer, sess.Route)),
	)
	tr.bridge = b

	e.logger.Info("ws client connected", "client_id", clientID, "session_id", sess.ID, "path", r.URL.Path)

	if err := b.Run(sess.Context, sess.Application); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("ws application failed", "session_id", sess.ID, "error", err)
	}
	tr.wait()
}
