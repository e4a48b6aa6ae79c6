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

// Package eventsource reads a Server-Sent Events stream produced by an
// application through a channel bridge. Reconnection is not implemented.
package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/bridge"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/channel"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

var ErrNotEventStream = errors.New("eventsource: response is not an event stream")

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const eventStreamType = "text/event-stream"

type EventSource struct {
	url    *url.URL
	host   *channel.HostEnd
	events chan Event
	logger *slog.Logger

	state  atomic.Int32
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	done      chan struct{}
}

// Open starts app for a GET of rawURL and interprets its response body as an
// event stream. The returned source is CONNECTING until the response start
// arrives.
func Open(ctx context.Context, app core.Application, rawURL string, opts ...bridge.Option) (*EventSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("eventsource: parse url: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	scope, err := core.NewExchangeScope("GET", path, [][2]string{{"accept", eventStreamType}}, u.RawQuery)
	if err != nil {
		return nil, err
	}

	host, end := channel.Pipe()
	if err := host.Send(ctx, core.ExchangeChunk{Body: []byte{}}); err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(ctx)
	es := &EventSource{
		url:    u,
		host:   host,
		events: make(chan Event),
		logger: slog.Default(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b := bridge.NewChannelBridge(scope, end, opts...)
	go func() {
		if err := b.Run(ctx, app); err != nil && ctx.Err() == nil {
			es.logger.Warn("event stream application failed", "url", rawURL, "error", err)
			es.fail(err)
		}
		end.Close()
	}()
	go es.read(readCtx)
	return es, nil
}

func (es *EventSource) State() State { return State(es.state.Load()) }

// Events delivers dispatched events. It is closed when the source closes.
func (es *EventSource) Events() <-chan Event { return es.events }

// Done is closed when the source has closed.
func (es *EventSource) Done() <-chan struct{} { return es.done }

// Err reports why the source closed, or nil after a normal end of stream.
func (es *EventSource) Err() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.err
}

// Close ends the stream and notifies the application with a disconnect.
func (es *EventSource) Close() error {
	es.shutdown()
	return nil
}

func (es *EventSource) shutdown() {
	es.closeOnce.Do(func() {
		es.state.Store(int32(StateClosed))
		es.host.Close()
		es.cancel()
	})
}

func (es *EventSource) fail(err error) {
	es.mu.Lock()
	if es.err == nil {
		es.err = err
	}
	es.mu.Unlock()
	es.shutdown()
}

func (es *EventSource) origin() string {
	if es.url.Scheme == "" || es.url.Host == "" {
		return ""
	}
	return es.url.Scheme + "://" + es.url.Host
}

func (es *EventSource) read(ctx context.Context) {
	defer close(es.done)
	defer close(es.events)

	p := &parser{origin: es.origin()}
	emit := func(ev Event) {
		if es.State() == StateClosed {
			return
		}
		select {
		case es.events <- ev:
		case <-ctx.Done():
		}
	}

	for {
		ev, err := es.host.Recv(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				es.fail(err)
			}
			es.shutdown()
			return
		}
		switch e := ev.(type) {
		case core.ResponseStart:
			if !isEventStream(e) {
				es.fail(fmt.Errorf("%w: status %d", ErrNotEventStream, e.Status))
				return
			}
			es.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
		case core.ResponseChunk:
			p.feed(e.Body, emit)
			if !e.More {
				es.shutdown()
				return
			}
		}
	}
}

func isEventStream(start core.ResponseStart) bool {
	if start.Status != 200 {
		return false
	}
	ct, ok := core.HeaderMap(start.Headers)["content-type"]
	if !ok {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == eventStreamType
}
