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

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/queue"
)

// Channel is a host's dedicated, ordered, bidirectional message channel for
// one logical connection. Recv returns io.EOF when the host has no more
// messages.
type Channel interface {
	Recv(ctx context.Context) (core.ReceiveEvent, error)
	Send(ctx context.Context, ev core.SendEvent) error
}

// ChannelBridge relays events between a Channel and an application without
// interpreting them.
type ChannelBridge struct {
	id      string
	scope   core.Scope
	channel Channel
	inbound *queue.Queue[core.ReceiveEvent]
	logger  *slog.Logger
	tracer  *logging.EventTracer

	sendMu sync.Mutex

	mu      sync.Mutex
	ended   bool
	pumpErr error
}

func NewChannelBridge(scope core.Scope, channel Channel, opts ...Option) *ChannelBridge {
	o := buildOptions(opts)
	return &ChannelBridge{
		id:      o.id,
		scope:   scope,
		channel: channel,
		inbound: queue.New[core.ReceiveEvent](),
		logger:  o.logger,
		tracer:  o.tracer,
	}
}

func (b *ChannelBridge) ID() string        { return b.id }
func (b *ChannelBridge) Scope() core.Scope { return b.scope }

// Receive returns the next event from the channel. After end of stream has
// been observed and drained it returns core.ErrConnectionClosed.
func (b *ChannelBridge) Receive(ctx context.Context) (core.ReceiveEvent, error) {
	b.mu.Lock()
	if b.ended {
		ev, ok := b.inbound.TryDequeue()
		b.mu.Unlock()
		if !ok {
			return nil, core.ErrConnectionClosed
		}
		b.tracer.Trace(b.id, logging.DirectionInbound, ev)
		return ev, nil
	}
	b.mu.Unlock()

	ev, err := b.inbound.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	b.tracer.Trace(b.id, logging.DirectionInbound, ev)
	return ev, nil
}

// Send forwards ev to the channel as soon as it is produced.
func (b *ChannelBridge) Send(ctx context.Context, ev core.SendEvent) error {
	if ev == nil {
		return &core.ProtocolError{Kind: b.scope.Kind(), State: "OPEN", EventType: core.EventTypeOf(ev)}
	}
	b.tracer.Trace(b.id, logging.DirectionOutbound, ev)

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if err := b.channel.Send(ctx, ev); err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	return nil
}

// Run pumps the channel into the bridge and invokes app. A channel failure
// other than end of stream cancels the application and is returned.
//
// Run does not wait for a Recv blocked in the channel; the pump stops once
// the host closes the channel or the channel honours the cancelled context.
func (b *ChannelBridge) Run(ctx context.Context, app core.Application) error {
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go b.pump(appCtx, cancel)

	err := serve(appCtx, app, b.scope, b, b.logger)

	b.mu.Lock()
	pumpErr := b.pumpErr
	b.mu.Unlock()
	if pumpErr != nil {
		return pumpErr
	}
	return err
}

func (b *ChannelBridge) pump(ctx context.Context, cancel context.CancelFunc) {
	for {
		ev, err := b.channel.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, core.ErrChannelClosed):
				b.mu.Lock()
				b.ended = true
				b.inbound.Enqueue(core.Disconnected{Kind: b.scope.Kind()})
				b.mu.Unlock()
			case ctx.Err() != nil:
			default:
				b.logger.Error("channel receive failed", "error", err)
				b.mu.Lock()
				b.pumpErr = fmt.Errorf("channel receive: %w", err)
				b.mu.Unlock()
				cancel()
			}
			return
		}
		if ev == nil {
			continue
		}
		b.inbound.Enqueue(ev)
	}
}
