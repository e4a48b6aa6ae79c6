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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const defaultMaxBody = 1 << 20

// Entrypoint answers every HTTP request with one request/response exchange.
type Entrypoint struct {
	name    string
	port    int
	manager core.SessionManager
	server  *http.Server
	logger  *slog.Logger
	tracer  *logging.EventTracer
	maxBody int64
}

func New(name string, port int, maxBody int64, logger *slog.Logger, tracer *logging.EventTracer) *Entrypoint {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Entrypoint{
		name:    name,
		port:    port,
		logger:  logger.With("entrypoint", name),
		tracer:  tracer,
		maxBody: maxBody,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "http" }

func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleRequest)
	return mux
}

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	e.server = &http.Server{Addr: fmt.Sprintf(":%d", e.port), Handler: e.Handler(manager)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("http entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

func (e *Entrypoint) handleRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	clientID := core.GenerateClientID(r)
	sess, err := e.manager.CreateSession(r.Context(), e.name, clientID, r.URL.Path)
	if err != nil {
		e.logger.Error("http session failed", "client_id", clientID, "error", err)
		http.Error(w, "session creation failed", core.HTTPStatus(err))
		return
	}
	defer e.manager.DestroySession(sess.ID)

	req := bridge.ExchangeRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     core.RequestHeaderPairs(r),
		QueryString: r.URL.RawQuery,
		Body:        body,
	}
	resp, err := bridge.Exchange(sess.Context, sess.Application, req,
		bridge.WithID(sess.ID),
		bridge.WithLogger(e.logger),
		bridge.WithTracer(logging.RouteTracer(e.tracer, sess.Route)),
	)
	if err != nil {
		e.logger.Error("exchange failed", "session_id", sess.ID, "error", err)
		http.Error(w, http.StatusText(core.HTTPStatus(err)), core.HTTPStatus(err))
		return
	}

	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
