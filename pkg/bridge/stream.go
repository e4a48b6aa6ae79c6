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
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/queue"
)

const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseAbnormal      = 1006
	CloseInternalError = 1011

	protocolErrorReason = "ASGI protocol error"
)

// Transport is the real message-oriented connection behind a StreamBridge.
// Its inbound notifications are reported with HandleMessage, HandleClose
// and HandleError.
type Transport interface {
	Accept(ctx context.Context, subprotocol string) error
	Send(ctx context.Context, payload core.Payload) error
	Close(ctx context.Context, code int, reason string) error
}

type streamState int

const (
	connecting streamState = iota
	open
	closing
	closed
)

func (s streamState) String() string {
	switch s {
	case connecting:
		return "CONNECTING"
	case open:
		return "OPEN"
	case closing:
		return "CLOSING"
	case closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StreamBridge drives a long-lived duplex connection. The application always
// receives ConnectionOpened first, then the peer's messages in arrival order,
// then exactly one Disconnected.
type StreamBridge struct {
	id        string
	scope     core.Scope
	transport Transport
	inbound   *queue.Queue[core.ReceiveEvent]
	logger    *slog.Logger
	tracer    *logging.EventTracer

	// sendMu keeps transport actions in production order.
	sendMu sync.Mutex

	mu              sync.Mutex
	state           streamState
	disconnected    bool
	delivered       bool
	transportClosed bool
	violation       error
}

func NewStreamBridge(scope core.Scope, transport Transport, opts ...Option) *StreamBridge {
	o := buildOptions(opts)
	b := &StreamBridge{
		id:        o.id,
		scope:     scope,
		transport: transport,
		inbound:   queue.New[core.ReceiveEvent](),
		logger:    o.logger,
		tracer:    o.tracer,
	}
	b.inbound.Enqueue(core.ConnectionOpened{})
	return b
}

func (b *StreamBridge) ID() string        { return b.id }
func (b *StreamBridge) Scope() core.Scope { return b.scope }

// State reports the lifecycle state, for diagnostics.
func (b *StreamBridge) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// HandleMessage queues a message from the peer. Messages after the peer
// closed are dropped.
func (b *StreamBridge) HandleMessage(payload core.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disconnected {
		b.logger.Debug("dropping message after disconnect", "payload_size", payload.Len())
		return
	}
	b.inbound.Enqueue(core.StreamMessage{Payload: payload})
}

// HandleClose queues the single Disconnected event of the connection.
func (b *StreamBridge) HandleClose(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disconnected {
		return
	}
	b.disconnected = true
	b.state = closed
	b.inbound.Enqueue(core.Disconnected{Kind: core.KindStream, Code: code})
}

// HandleError reports a transport failure. It does not end the connection;
// the transport is expected to follow up with HandleClose.
func (b *StreamBridge) HandleError(err error) {
	b.logger.Warn("stream transport error", "error", err)
}

// Receive returns the next inbound event. Once Disconnected has been handed
// out it returns core.ErrConnectionClosed.
func (b *StreamBridge) Receive(ctx context.Context) (core.ReceiveEvent, error) {
	b.mu.Lock()
	delivered := b.delivered
	b.mu.Unlock()
	if delivered {
		return nil, core.ErrConnectionClosed
	}

	ev, err := b.inbound.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := ev.(core.Disconnected); ok {
		b.mu.Lock()
		b.delivered = true
		b.mu.Unlock()
	}
	b.tracer.Trace(b.id, logging.DirectionInbound, ev)
	return ev, nil
}

// Send applies one outbound event to the transport. Events that are not
// stream events, or not valid in the current state, force-close the
// transport with 1002 before the error is returned.
func (b *StreamBridge) Send(ctx context.Context, ev core.SendEvent) error {
	b.tracer.Trace(b.id, logging.DirectionOutbound, ev)

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	switch e := ev.(type) {
	case core.Accepted:
		if state != connecting {
			return b.violate(ctx, state, ev)
		}
		if err := b.transport.Accept(ctx, e.Subprotocol); err != nil {
			return fmt.Errorf("stream accept: %w", err)
		}
		b.mu.Lock()
		if b.state == connecting {
			b.state = open
		}
		b.mu.Unlock()
		return nil

	case core.StreamSend:
		switch state {
		case connecting:
			return b.violate(ctx, state, ev)
		case closing, closed:
			return core.ErrConnectionClosed
		}
		if err := b.transport.Send(ctx, e.Payload); err != nil {
			return fmt.Errorf("stream send: %w", err)
		}
		return nil

	case core.Closed:
		if state == closing || state == closed {
			return core.ErrConnectionClosed
		}
		code := e.Code
		if code == 0 {
			code = CloseNormal
		}
		b.mu.Lock()
		b.state = closing
		b.transportClosed = true
		b.mu.Unlock()
		if err := b.transport.Close(ctx, code, e.Reason); err != nil {
			return fmt.Errorf("stream close: %w", err)
		}
		return nil

	default:
		return b.violate(ctx, state, ev)
	}
}

func (b *StreamBridge) violate(ctx context.Context, state streamState, ev core.SendEvent) error {
	perr := &core.ProtocolError{
		Kind:      core.KindStream,
		State:     state.String(),
		EventType: core.EventTypeOf(ev),
	}
	b.logger.Error("stream protocol violation", "state", perr.State, "event_type", perr.EventType)

	b.mu.Lock()
	alreadyClosed := b.transportClosed || b.state == closed
	b.transportClosed = true
	if b.state != closed {
		b.state = closing
	}
	if b.violation == nil {
		b.violation = perr
	}
	b.mu.Unlock()

	if !alreadyClosed {
		if err := b.transport.Close(ctx, CloseProtocolError, protocolErrorReason); err != nil {
			b.logger.Warn("force close failed", "error", err)
		}
	}
	return perr
}

// Run invokes app for the lifetime of the connection. If the application
// returns without closing, the transport is closed for it.
func (b *StreamBridge) Run(ctx context.Context, app core.Application) error {
	err := serve(ctx, app, b.scope, b, b.logger)

	b.mu.Lock()
	needsClose := !b.transportClosed && b.state != closed
	b.transportClosed = true
	violation := b.violation
	b.mu.Unlock()

	if needsClose {
		code := CloseNormal
		if err != nil {
			code = CloseInternalError
		}
		b.sendMu.Lock()
		if cerr := b.transport.Close(context.WithoutCancel(ctx), code, ""); cerr != nil {
			b.logger.Warn("stream close after return failed", "error", cerr)
		}
		b.sendMu.Unlock()
	}

	if err == nil && violation != nil {
		return violation
	}
	if err != nil && violation != nil && !errors.Is(err, core.ErrProtocolViolation) {
		return errors.Join(violation, err)
	}
	return err
}
