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

// Package channel provides an in-memory, ordered, bidirectional message
// channel for hosts that live in the same process as the bridge.
package channel

import (
	"context"
	"io"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/queue"
)

type item[T any] struct {
	value T
	eof   bool
}

// direction is one half of a pipe. Sends never block; Close is delivered
// to the reader after every value sent before it.
type direction[T any] struct {
	q *queue.Queue[item[T]]

	mu      sync.Mutex
	closed  bool
	drained bool
}

func newDirection[T any]() *direction[T] {
	return &direction[T]{q: queue.New[item[T]]()}
}

func (d *direction[T]) send(v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return core.ErrChannelClosed
	}
	d.q.Enqueue(item[T]{value: v})
	return nil
}

func (d *direction[T]) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.q.Enqueue(item[T]{eof: true})
}

func (d *direction[T]) recv(ctx context.Context) (T, error) {
	var zero T
	d.mu.Lock()
	drained := d.drained
	d.mu.Unlock()
	if drained {
		return zero, io.EOF
	}

	it, err := d.q.Dequeue(ctx)
	if err != nil {
		return zero, err
	}
	if it.eof {
		d.mu.Lock()
		d.drained = true
		d.mu.Unlock()
		return zero, io.EOF
	}
	return it.value, nil
}

// HostEnd is the side of a pipe held by the host: it delivers inbound
// events and collects the application's outbound events.
type HostEnd struct {
	in  *direction[core.ReceiveEvent]
	out *direction[core.SendEvent]
}

// Send delivers ev to the application side.
func (h *HostEnd) Send(ctx context.Context, ev core.ReceiveEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.in.send(ev)
}

// Recv returns the next outbound event, or io.EOF once the bridge end has
// been closed and drained.
func (h *HostEnd) Recv(ctx context.Context) (core.SendEvent, error) {
	return h.out.recv(ctx)
}

// Close ends the inbound direction.
func (h *HostEnd) Close() error {
	h.in.close()
	return nil
}

// BridgeEnd is the side of a pipe handed to a bridge.
type BridgeEnd struct {
	in  *direction[core.ReceiveEvent]
	out *direction[core.SendEvent]
}

func (b *BridgeEnd) Recv(ctx context.Context) (core.ReceiveEvent, error) {
	return b.in.recv(ctx)
}

func (b *BridgeEnd) Send(ctx context.Context, ev core.SendEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.out.send(ev)
}

// Close ends the outbound direction.
func (b *BridgeEnd) Close() error {
	b.out.close()
	return nil
}

// Pipe returns the two connected ends of a new in-memory channel.
func Pipe() (*HostEnd, *BridgeEnd) {
	in := newDirection[core.ReceiveEvent]()
	out := newDirection[core.SendEvent]()
	return &HostEnd{in: in, out: out}, &BridgeEnd{in: in, out: out}
}
