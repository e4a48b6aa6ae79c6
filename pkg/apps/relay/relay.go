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

// Package relay bridges connections to a message broker endpoint: inbound
// messages are published, and broker deliveries are sent back to the peer.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

var (
	acceptedBody    = []byte(`{"status":"accepted"}`)
	unavailableBody = []byte(`{"status":"unavailable"}`)
)

type App struct {
	endpoint core.Endpoint
	logger   *slog.Logger
}

func New(endpoint core.Endpoint, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		endpoint: endpoint,
		logger:   logger.With("application", "relay", "endpoint", endpoint.Name()),
	}
}

func (a *App) Serve(ctx context.Context, scope core.Scope, conn core.Connection) error {
	switch scope.Kind() {
	case core.KindExchange:
		return a.serveExchange(ctx, scope, conn)
	case core.KindStream:
		return a.serveStream(ctx, scope, conn)
	default:
		return errors.New("relay: unsupported connection kind")
	}
}

func (a *App) message(scope core.Scope, payload []byte, text bool) core.Message {
	return core.Message{
		ID:        uuid.New().String(),
		Source:    a.endpoint.Name(),
		Payload:   payload,
		Text:      text,
		Metadata:  map[string]string{"path": scope.Path()},
		Timestamp: time.Now().UTC(),
	}
}

func (a *App) serveExchange(ctx context.Context, scope core.Scope, conn core.Connection) error {
	var body bytes.Buffer
	for {
		ev, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		chunk, ok := ev.(core.ExchangeChunk)
		if !ok {
			return nil
		}
		body.Write(chunk.Body)
		if !chunk.More {
			break
		}
	}

	status, respBody := 202, acceptedBody
	if err := a.endpoint.Publish(ctx, a.message(scope, body.Bytes(), false)); err != nil {
		a.logger.Error("publish failed", "path", scope.Path(), "error", err)
		status, respBody = 503, unavailableBody
	}

	start := core.ResponseStart{
		Status:  status,
		Headers: []core.Header{core.TextHeader("content-type", "application/json")},
	}
	if err := conn.Send(ctx, start); err != nil {
		return err
	}
	return conn.Send(ctx, core.ResponseChunk{Body: respBody})
}

func (a *App) serveStream(ctx context.Context, scope core.Scope, conn core.Connection) error {
	ev, err := conn.Receive(ctx)
	if err != nil {
		return err
	}
	if _, ok := ev.(core.ConnectionOpened); !ok {
		// Peer went away before the handshake.
		return nil
	}
	if err := conn.Send(ctx, core.Accepted{}); err != nil {
		return err
	}

	subID := uuid.New().String()
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	subDone := make(chan error, 1)
	go func() {
		subDone <- a.endpoint.Subscribe(subCtx, subID, func(m core.Message) error {
			payload := core.BinaryPayload(m.Payload)
			if m.Text {
				payload = core.TextPayload(string(m.Payload))
			}
			if err := conn.Send(subCtx, core.StreamSend{Payload: payload}); err != nil {
				return err
			}
			if m.Ack != nil {
				if err := m.Ack(); err != nil {
					a.logger.Warn("ack failed", "subscription_id", subID, "error", err)
				}
			}
			return nil
		})
	}()
	defer func() {
		if err := a.endpoint.Unsubscribe(subID); err != nil {
			a.logger.Warn("unsubscribe failed", "subscription_id", subID, "error", err)
		}
	}()

	inbound := make(chan core.ReceiveEvent)
	recvErr := make(chan error, 1)
	go func() {
		for {
			ev, err := conn.Receive(subCtx)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case inbound <- ev:
			case <-subCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case err := <-subDone:
			if err != nil && subCtx.Err() == nil {
				return fmt.Errorf("relay subscription: %w", err)
			}
			subDone = nil
		case err := <-recvErr:
			return err
		case ev := <-inbound:
			switch e := ev.(type) {
			case core.StreamMessage:
				msg := a.message(scope, e.Payload.Bytes(), e.Payload.IsText())
				if err := a.endpoint.Publish(ctx, msg); err != nil {
					a.logger.Error("publish failed", "subscription_id", subID, "error", err)
				}
			case core.Disconnected:
				a.logger.Debug("stream closed by peer", "subscription_id", subID, "code", e.Code)
				return nil
			}
		}
	}
}
