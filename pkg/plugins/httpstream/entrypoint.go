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

package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/channel"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	defaultMaxBody = 1 << 20
	drainTimeout   = 5 * time.Second
)

// Entrypoint streams a response to the client as the application produces
// it. Every response chunk is written and flushed on arrival, which suits
// event streams and long polling.
type Entrypoint struct {
	name     string
	port     int
	manager  core.SessionManager
	server   *http.Server
	logger   *slog.Logger
	tracer   *logging.EventTracer
	maxBody  int64
	sessions sync.Map
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
func (e *Entrypoint) Type() string { return "http_stream" }

func (e *Entrypoint) Handler(manager core.SessionManager) http.Handler {
	e.manager = manager
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleStream)
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

	e.logger.Info("http_stream entrypoint starting", "port", e.port)
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

func (e *Entrypoint) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	scope, err := core.NewExchangeScope(r.Method, r.URL.Path, core.RequestHeaderPairs(r), r.URL.RawQuery)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The application learns about a client disconnect from the
	// Disconnected event, not from a cancelled context.
	clientID := core.GenerateClientID(r)
	sess, err := e.manager.CreateSession(context.WithoutCancel(r.Context()), e.name, clientID, r.URL.Path)
	if err != nil {
		e.logger.Error("http_stream session failed", "client_id", clientID, "error", err)
		http.Error(w, "session creation failed", core.HTTPStatus(err))
		return
	}
	e.sessions.Store(sess.ID, sess)
	defer func() {
		e.sessions.Delete(sess.ID)
		e.manager.DestroySession(sess.ID)
	}()

	host, end := channel.Pipe()
	host.Send(r.Context(), core.ExchangeChunk{Body: body})

	b := bridge.NewChannelBridge(scope, end,
		bridge.WithID(sess.ID),
		bridge.WithLogger(e.logger),
		bridge.WithTracer(logging.RouteTracer(e.tracer, sess.Route)),
	)
	result := make(chan error, 1)
	go func() {
		err := b.Run(sess.Context, sess.Application)
		end.Close()
		result <- err
	}()

	finished, runErr := e.relay(r.Context(), w, flusher, host, result, sess.ID)
	host.Close()

	if !finished {
		select {
		case runErr = <-result:
		case <-time.After(drainTimeout):
			sess.Cancel()
			runErr = <-result
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		e.logger.Error("http_stream application failed", "session_id", sess.ID, "error", runErr)
	}
}

// relay writes outbound events to the client until the response is
// complete, the application ends, or the client goes away. It reports
// whether the application result was already collected.
func (e *Entrypoint) relay(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	host *channel.HostEnd,
	result <-chan error,
	sessionID string,
) (bool, error) {
	started := false
	for {
		ev, err := host.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				runErr := <-result
				if !started {
					status := core.HTTPStatus(runErr)
					if runErr == nil {
						status = http.StatusBadGateway
					}
					http.Error(w, http.StatusText(status), status)
				}
				return true, runErr
			}
			// Client gone; closing the host end delivers Disconnected.
			return false, nil
		}

		switch ev := ev.(type) {
		case core.ResponseStart:
			if started {
				e.logger.Warn("duplicate response start", "session_id", sessionID)
				return false, nil
			}
			for name, value := range core.HeaderMap(ev.Headers) {
				w.Header().Set(name, value)
			}
			w.WriteHeader(ev.Status)
			flusher.Flush()
			started = true

		case core.ResponseChunk:
			if !started {
				http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
				return false, nil
			}
			if len(ev.Body) > 0 {
				if _, err := w.Write(ev.Body); err != nil {
					return false, nil
				}
				flusher.Flush()
			}
			if !ev.More {
				return false, nil
			}

		default:
			e.logger.Warn("unexpected event on http stream", "session_id", sessionID, "event_type", core.EventTypeOf(ev))
			if !started {
				http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			}
			return false, nil
		}
	}
}
