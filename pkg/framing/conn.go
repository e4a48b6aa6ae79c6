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

package framing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Conn is a dedicated framed channel for one logical connection. The
// server side uses ReadRequest, Recv and Send; the peer uses WriteRequest,
// SendEvent and RecvEvent.
type Conn struct {
	rw       io.ReadWriter
	codec    Codec
	maxFrame int

	rmu sync.Mutex
	wmu sync.Mutex
}

func NewConn(rw io.ReadWriter, codec Codec, maxFrame int) *Conn {
	if codec == nil {
		codec = CBOR
	}
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Conn{rw: rw, codec: codec, maxFrame: maxFrame}
}

func (c *Conn) Codec() Codec { return c.codec }

func (c *Conn) read(ctx context.Context, v any) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if d, ok := c.rw.(readDeadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			d.SetReadDeadline(time.Now())
		})
		defer stop()
	}

	payload, err := ReadFrame(c.rw, c.maxFrame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if err := c.codec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", c.codec.Name(), err)
	}
	return nil
}

func (c *Conn) write(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", c.codec.Name(), err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rw, payload)
}

// ReadRequest reads the exchange request that opens every framed
// connection.
func (c *Conn) ReadRequest(ctx context.Context) (bridge.ExchangeRequest, error) {
	var req bridge.ExchangeRequest
	if err := c.read(ctx, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("%w: connection closed before request", core.ErrInvalidRequest)
		}
		return req, err
	}
	if req.Method == "" {
		return req, fmt.Errorf("%w: empty method", core.ErrInvalidRequest)
	}
	return req, nil
}

func (c *Conn) WriteRequest(ctx context.Context, req bridge.ExchangeRequest) error {
	return c.write(ctx, req)
}

// Recv reads the next inbound event. io.EOF marks the end of the stream.
func (c *Conn) Recv(ctx context.Context) (core.ReceiveEvent, error) {
	var env Envelope
	if err := c.read(ctx, &env); err != nil {
		return nil, err
	}
	return env.ReceiveEvent()
}

func (c *Conn) Send(ctx context.Context, ev core.SendEvent) error {
	env, err := FromSendEvent(ev)
	if err != nil {
		return err
	}
	return c.write(ctx, env)
}

// SendEvent writes an inbound event from the peer side.
func (c *Conn) SendEvent(ctx context.Context, ev core.ReceiveEvent) error {
	env, err := FromReceiveEvent(ev)
	if err != nil {
		return err
	}
	return c.write(ctx, env)
}

// RecvEvent reads the next outbound event on the peer side.
func (c *Conn) RecvEvent(ctx context.Context) (core.SendEvent, error) {
	var env Envelope
	if err := c.read(ctx, &env); err != nil {
		return nil, err
	}
	return env.SendEvent()
}
