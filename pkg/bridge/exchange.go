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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

// ExchangeRequest is the host's request message.
type ExchangeRequest struct {
	Method      string      `json:"method" cbor:"method"`
	Path        string      `json:"path" cbor:"path"`
	Headers     [][2]string `json:"headers" cbor:"headers"`
	QueryString string      `json:"query_string" cbor:"query_string"`
	Body        []byte      `json:"body,omitempty" cbor:"body,omitempty"`
}

// ExchangeResponse is the aggregated response handed back to the host.
type ExchangeResponse struct {
	Status  int               `json:"status" cbor:"status"`
	Headers map[string]string `json:"headers" cbor:"headers"`
	Body    []byte            `json:"body" cbor:"body"`
}

type exchangeState int

const (
	awaitingStart exchangeState = iota
	started
	accumulating
	complete
)

func (s exchangeState) String() string {
	switch s {
	case awaitingStart:
		return "AWAITING_START"
	case started:
		return "STARTED"
	case accumulating:
		return "ACCUMULATING"
	case complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ExchangeBridge drives one request/response exchange. The request body is
// handed to the application exactly once and the response body is buffered
// until the final chunk.
type ExchangeBridge struct {
	id     string
	scope  core.Scope
	body   []byte
	logger *slog.Logger
	tracer *logging.EventTracer

	mu      sync.Mutex
	sent    bool
	state   exchangeState
	status  int
	headers map[string]string
	buf     bytes.Buffer

	once     sync.Once
	done     chan struct{}
	response *ExchangeResponse
	err      error
}

// NewExchangeBridge validates req and builds the bridge for one exchange.
func NewExchangeBridge(req ExchangeRequest, opts ...Option) (*ExchangeBridge, error) {
	scope, err := core.NewExchangeScope(req.Method, req.Path, req.Headers, req.QueryString)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	body := req.Body
	if body == nil {
		body = []byte{}
	}
	return &ExchangeBridge{
		id:     o.id,
		scope:  scope,
		body:   body,
		logger: o.logger,
		tracer: o.tracer,
		done:   make(chan struct{}),
	}, nil
}

// Exchange runs app for a single request and returns its aggregated response.
func Exchange(ctx context.Context, app core.Application, req ExchangeRequest, opts ...Option) (*ExchangeResponse, error) {
	b, err := NewExchangeBridge(req, opts...)
	if err != nil {
		return nil, err
	}
	return b.Run(ctx, app)
}

func (b *ExchangeBridge) ID() string        { return b.id }
func (b *ExchangeBridge) Scope() core.Scope { return b.scope }

// Receive returns the request body on the first call and Disconnected on
// every call after that.
func (b *ExchangeBridge) Receive(ctx context.Context) (core.ReceiveEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	var ev core.ReceiveEvent
	if !b.sent {
		b.sent = true
		ev = core.ExchangeChunk{Body: b.body, More: false}
	} else {
		ev = core.Disconnected{Kind: core.KindExchange}
	}
	b.mu.Unlock()

	b.tracer.Trace(b.id, logging.DirectionInbound, ev)
	return ev, nil
}

// Send advances the response state machine. An event that is not valid in
// the current state fails the exchange with a *core.ProtocolError.
func (b *ExchangeBridge) Send(ctx context.Context, ev core.SendEvent) error {
	b.tracer.Trace(b.id, logging.DirectionOutbound, ev)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch e := ev.(type) {
	case core.ResponseStart:
		if b.state != awaitingStart {
			return b.violateLocked(ev)
		}
		b.status = e.Status
		b.headers = core.HeaderMap(e.Headers)
		b.state = started
		return nil

	case core.ResponseChunk:
		if b.state != started && b.state != accumulating {
			return b.violateLocked(ev)
		}
		b.buf.Write(e.Body)
		b.state = accumulating
		if e.More {
			return nil
		}
		b.state = complete
		b.resolve(&ExchangeResponse{
			Status:  b.status,
			Headers: b.headers,
			Body:    bytes.Clone(b.buf.Bytes()),
		}, nil)
		return nil

	default:
		return b.violateLocked(ev)
	}
}

func (b *ExchangeBridge) violateLocked(ev core.SendEvent) error {
	err := &core.ProtocolError{
		Kind:      core.KindExchange,
		State:     b.state.String(),
		EventType: core.EventTypeOf(ev),
	}
	b.logger.Error("exchange protocol violation", "state", err.State, "event_type", err.EventType)
	b.resolve(nil, err)
	return err
}

// resolve settles the exchange once. Later calls are ignored.
func (b *ExchangeBridge) resolve(resp *ExchangeResponse, err error) {
	b.once.Do(func() {
		b.response = resp
		b.err = err
		close(b.done)
	})
}

// Done is closed when the exchange has a result.
func (b *ExchangeBridge) Done() <-chan struct{} { return b.done }

// Run invokes app and waits for the aggregated response. Once the exchange
// resolves the application's context is cancelled; Run does not wait for the
// application to return.
func (b *ExchangeBridge) Run(ctx context.Context, app core.Application) (*ExchangeResponse, error) {
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	appDone := make(chan error, 1)
	go func() {
		appDone <- serve(appCtx, app, b.scope, b, b.logger)
	}()

	select {
	case <-b.done:
	case err := <-appDone:
		if err != nil {
			b.resolve(nil, err)
		} else {
			b.resolve(nil, fmt.Errorf("%w: state %s", core.ErrIncompleteResponse, b.currentState()))
		}
	case <-ctx.Done():
		b.resolve(nil, ctx.Err())
	}

	<-b.done
	return b.response, b.err
}

func (b *ExchangeBridge) currentState() exchangeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
