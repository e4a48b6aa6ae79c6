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

package framed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/framing"
)

const requestTimeout = 10 * time.Second

// Entrypoint accepts TCP connections that each carry one logical connection
// as length-prefixed frames. The first frame is the request; after that
// events flow both ways until either side closes.
type Entrypoint struct {
	name     string
	port     int
	codec    framing.Codec
	maxFrame int
	manager  core.SessionManager
	logger   *slog.Logger
	tracer   *logging.EventTracer

	mu       sync.Mutex
	listener net.Listener
	sessions sync.Map
	wg       sync.WaitGroup
}

func New(name string, port int, codec framing.Codec, maxFrame int, logger *slog.Logger, tracer *logging.EventTracer) *Entrypoint {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = framing.CBOR
	}
	return &Entrypoint{
		name:     name,
		port:     port,
		codec:    codec,
		maxFrame: maxFrame,
		logger:   logger.With("entrypoint", name),
		tracer:   tracer,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "framed" }

func (e *Entrypoint) Start(ctx context.Context, manager core.SessionManager) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	e.logger.Info("framed entrypoint starting", "port", e.port, "codec", e.codec.Name())
	return e.Serve(ctx, ln, manager)
}

// Serve accepts connections from ln until ctx is done or Stop is called.
func (e *Entrypoint) Serve(ctx context.Context, ln net.Listener, manager core.SessionManager) error {
	e.mu.Lock()
	e.manager = manager
	e.listener = ln
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("framed connection panic recovered", "error", r)
				}
			}()
			e.handleConn(ctx, nc)
		}()
	}
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	ln := e.listener
	e.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	e.sessions.Range(func(_, val any) bool {
		e.manager.DestroySession(val.(*core.Session).ID)
		return true
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Entrypoint) handleConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	fc := framing.NewConn(nc, e.codec, e.maxFrame)

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	req, err := fc.ReadRequest(reqCtx)
	cancel()
	if err != nil {
		e.logger.Warn("framed request failed", "remote", nc.RemoteAddr().String(), "error", err)
		e.reject(ctx, fc, err)
		return
	}

	scope, err := core.NewExchangeScope(req.Method, req.Path, req.Headers, req.QueryString)
	if err != nil {
		e.reject(ctx, fc, err)
		return
	}

	clientID := core.ClientIDFromAddr(nc.RemoteAddr().String())
	sess, err := e.manager.CreateSession(ctx, e.name, clientID, req.Path)
	if err != nil {
		e.logger.Error("framed session failed", "client_id", clientID, "error", err)
		e.reject(ctx, fc, err)
		return
	}
	e.sessions.Store(sess.ID, sess)
	defer func() {
		e.sessions.Delete(sess.ID)
		e.manager.DestroySession(sess.ID)
	}()

	ch := &requestChannel{Conn: fc, first: core.ExchangeChunk{Body: nonNil(req.Body)}}
	b := bridge.NewChannelBridge(scope, ch,
		bridge.WithID(sess.ID),
		bridge.WithLogger(e.logger),
		bridge.WithTracer(logging.RouteTracer(e.tracer, sess.Route)),
	)

	e.logger.Info("framed client connected", "client_id", clientID, "session_id", sess.ID, "path", req.Path)
	if err := b.Run(sess.Context, sess.Application); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("framed application failed", "session_id", sess.ID, "error", err)
	}
}

// reject answers a connection that could not be bridged with a complete
// error response.
func (e *Entrypoint) reject(ctx context.Context, fc *framing.Conn, cause error) {
	fc.Send(ctx, core.ResponseStart{
		Status:  core.HTTPStatus(cause),
		Headers: []core.Header{core.TextHeader("content-type", "text/plain")},
	})
	fc.Send(ctx, core.ResponseChunk{Body: []byte(cause.Error())})
}

// requestChannel yields the body carried by the request frame before the
// events that follow it.
type requestChannel struct {
	*framing.Conn

	mu    sync.Mutex
	first core.ReceiveEvent
}

func (c *requestChannel) Recv(ctx context.Context) (core.ReceiveEvent, error) {
	c.mu.Lock()
	first := c.first
	c.first = nil
	c.mu.Unlock()
	if first != nil {
		return first, nil
	}
	return c.Conn.Recv(ctx)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
