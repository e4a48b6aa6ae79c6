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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	writeWait  = 5 * time.Second
	closeGrace = 5 * time.Second
)

// transport adapts a gorilla connection to bridge.Transport. The upgrade
// handshake is deferred until the application accepts; closing before that
// rejects the request with 403.
type transport struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	logger   *slog.Logger
	bridge   *bridge.StreamBridge

	mu       sync.Mutex
	conn     *websocket.Conn
	rejected bool
	readDone chan struct{}
}

func newTransport(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, logger *slog.Logger) *transport {
	return &transport{
		w:        w,
		r:        r,
		upgrader: upgrader,
		logger:   logger,
		readDone: make(chan struct{}),
	}
}

func (t *transport) Accept(ctx context.Context, subprotocol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var header http.Header
	if subprotocol != "" {
		header = http.Header{}
		header.Set("Sec-WebSocket-Protocol", subprotocol)
	}
	conn, err := t.upgrader.Upgrade(t.w, t.r, header)
	if err != nil {
		// Upgrade has already answered the request.
		t.rejected = true
		close(t.readDone)
		t.bridge.HandleError(err)
		t.bridge.HandleClose(bridge.CloseAbnormal)
		return err
	}
	t.conn = conn
	go t.readLoop(conn)
	return nil
}

func (t *transport) Send(ctx context.Context, payload core.Payload) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return core.ErrConnectionClosed
	}

	messageType := websocket.BinaryMessage
	if payload.IsText() {
		messageType = websocket.TextMessage
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload.Bytes())
}

func (t *transport) Close(ctx context.Context, code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if t.rejected {
			return nil
		}
		t.rejected = true
		close(t.readDone)
		http.Error(t.w, "connection rejected", http.StatusForbidden)
		t.bridge.HandleClose(code)
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	// The read loop ends on the peer's close reply or when the grace
	// period expires.
	t.conn.SetReadDeadline(time.Now().Add(closeGrace))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (t *transport) readLoop(conn *websocket.Conn) {
	defer close(t.readDone)
	defer conn.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				t.bridge.HandleClose(closeErr.Code)
			} else {
				t.bridge.HandleError(err)
				t.bridge.HandleClose(bridge.CloseAbnormal)
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			t.bridge.HandleMessage(core.TextPayload(string(data)))
		case websocket.BinaryMessage:
			t.bridge.HandleMessage(core.BinaryPayload(data))
		}
	}
}

// wait blocks until the connection is fully torn down, or returns at once
// when it was never accepted.
func (t *transport) wait() {
	t.mu.Lock()
	accepted := t.conn != nil || t.rejected
	t.mu.Unlock()
	if accepted {
		<-t.readDone
	}
}
