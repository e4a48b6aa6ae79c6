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

// Package echo serves both connection kinds by sending back what it
// receives.
package echo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const defaultContentType = "application/octet-stream"

type App struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger.With("application", "echo")}
}

func (a *App) Serve(ctx context.Context, scope core.Scope, conn core.Connection) error {
	switch scope.Kind() {
	case core.KindExchange:
		return a.serveExchange(ctx, scope, conn)
	case core.KindStream:
		return a.serveStream(ctx, conn)
	default:
		return errors.New("echo: unsupported connection kind")
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
			// Disconnected before the body was complete.
			return nil
		}
		body.Write(chunk.Body)
		if !chunk.More {
			break
		}
	}

	contentType, ok := scope.Header("content-type")
	if !ok {
		contentType = defaultContentType
	}
	headers := []core.Header{core.TextHeader("content-type", contentType)}
	if path, err := core.EncodeLatin1(scope.Path()); err == nil {
		headers = append(headers, core.Header{Name: []byte("x-echo-path"), Value: path})
	}

	if err := conn.Send(ctx, core.ResponseStart{Status: 200, Headers: headers}); err != nil {
		return err
	}
	return conn.Send(ctx, core.ResponseChunk{Body: body.Bytes()})
}

func (a *App) serveStream(ctx context.Context, conn core.Connection) error {
	for {
		ev, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case core.ConnectionOpened:
			if err := conn.Send(ctx, core.Accepted{}); err != nil {
				return err
			}
		case core.StreamMessage:
			if err := conn.Send(ctx, core.StreamSend{Payload: e.Payload}); err != nil {
				return err
			}
		case core.Disconnected:
			a.logger.Debug("stream closed by peer", "code", e.Code)
			return nil
		}
	}
}
