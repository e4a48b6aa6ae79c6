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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func getRequest(body string) ExchangeRequest {
	return ExchangeRequest{
		Method:  "GET",
		Path:    "/",
		Headers: [][2]string{{"host", "localhost"}},
		Body:    []byte(body),
	}
}

func TestExchangeSingleFireRequestBody(t *testing.T) {
	var events []core.ReceiveEvent
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		for i := 0; i < 3; i++ {
			ev, err := conn.Receive(ctx)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		if err := conn.Send(ctx, core.ResponseStart{Status: 204}); err != nil {
			return err
		}
		return conn.Send(ctx, core.ResponseChunk{})
	})

	resp, err := Exchange(context.Background(), app, getRequest("payload"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != 204 {
		t.Fatalf("expected 204, got %d", resp.Status)
	}

	chunk, ok := events[0].(core.ExchangeChunk)
	if !ok {
		t.Fatalf("expected first event to be a request chunk, got %T", events[0])
	}
	if string(chunk.Body) != "payload" || chunk.More {
		t.Fatalf("unexpected request chunk: %+v", chunk)
	}
	for _, ev := range events[1:] {
		if _, ok := ev.(core.Disconnected); !ok {
			t.Fatalf("expected disconnect after the body, got %T", ev)
		}
		if ev.EventType() != "http.disconnect" {
			t.Fatalf("unexpected event type %q", ev.EventType())
		}
	}
}

func TestExchangeEmptyBody(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		ev, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		chunk := ev.(core.ExchangeChunk)
		if chunk.Body == nil || len(chunk.Body) != 0 {
			t.Errorf("expected empty non-nil body, got %#v", chunk.Body)
		}
		conn.Send(ctx, core.ResponseStart{Status: 200})
		return conn.Send(ctx, core.ResponseChunk{})
	})

	req := getRequest("")
	req.Body = nil
	if _, err := Exchange(context.Background(), app, req, WithLogger(quietLogger())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExchangeAggregatesBody(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		if _, err := conn.Receive(ctx); err != nil {
			return err
		}
		if err := conn.Send(ctx, core.ResponseStart{Status: 200}); err != nil {
			return err
		}
		if err := conn.Send(ctx, core.ResponseChunk{Body: []byte("ab"), More: true}); err != nil {
			return err
		}
		return conn.Send(ctx, core.ResponseChunk{Body: []byte("cd")})
	})

	resp, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if string(resp.Body) != "abcd" {
		t.Fatalf("expected body abcd, got %q", resp.Body)
	}
	if len(resp.Headers) != 0 {
		t.Fatalf("expected no headers, got %v", resp.Headers)
	}
}

func TestExchangeDecodesHeaders(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseStart{Status: 200, Headers: []core.Header{
			{Name: []byte("content-type"), Value: []byte("text/plain")},
			{Name: []byte("x-name"), Value: []byte{'J', 0xf6, 'r', 'g'}},
			{Name: []byte("x-dup"), Value: []byte("first")},
			{Name: []byte("x-dup"), Value: []byte("second")},
		}})
		return conn.Send(ctx, core.ResponseChunk{Body: []byte("ok")})
	})

	resp, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"content-type": "text/plain",
		"x-name":       "Jörg",
		"x-dup":        "second",
	}
	for k, v := range want {
		if resp.Headers[k] != v {
			t.Errorf("header %s: expected %q, got %q", k, v, resp.Headers[k])
		}
	}
}

func TestExchangeScopeFromRequest(t *testing.T) {
	var got core.Scope
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		got = scope
		conn.Send(ctx, core.ResponseStart{Status: 200})
		return conn.Send(ctx, core.ResponseChunk{})
	})

	req := ExchangeRequest{Method: "POST", Path: "/submit", QueryString: "a=1", Headers: [][2]string{{"content-type", "application/json"}}}
	if _, err := Exchange(context.Background(), app, req, WithLogger(quietLogger())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind() != core.KindExchange || got.Method() != "POST" || got.Path() != "/submit" {
		t.Fatalf("unexpected scope: kind=%v method=%s path=%s", got.Kind(), got.Method(), got.Path())
	}
	if string(got.QueryString()) != "a=1" {
		t.Fatalf("unexpected query string %q", got.QueryString())
	}
	if v, _ := got.Header("Content-Type"); v != "application/json" {
		t.Fatalf("unexpected content-type %q", v)
	}
}

func TestExchangeRejectsEmptyMethod(t *testing.T) {
	called := false
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		called = true
		return nil
	})

	_, err := Exchange(context.Background(), app, ExchangeRequest{Path: "/"}, WithLogger(quietLogger()))
	if !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if called {
		t.Fatal("application must not be invoked for an invalid request")
	}
}

func TestExchangeProtocolViolations(t *testing.T) {
	tests := []struct {
		name      string
		events    []core.SendEvent
		state     string
		eventType string
	}{
		{
			name:      "chunk before start",
			events:    []core.SendEvent{core.ResponseChunk{Body: []byte("x")}},
			state:     "AWAITING_START",
			eventType: "http.response.body",
		},
		{
			name:      "second start",
			events:    []core.SendEvent{core.ResponseStart{Status: 200}, core.ResponseStart{Status: 500}},
			state:     "STARTED",
			eventType: "http.response.start",
		},
		{
			name:      "stream event",
			events:    []core.SendEvent{core.Accepted{}},
			state:     "AWAITING_START",
			eventType: "websocket.accept",
		},
		{
			name:      "event after complete",
			events:    []core.SendEvent{core.ResponseStart{Status: 200}, core.ResponseChunk{}, core.ResponseChunk{}},
			state:     "COMPLETE",
			eventType: "http.response.body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewExchangeBridge(getRequest(""), WithLogger(quietLogger()))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var lastErr error
			for _, ev := range tt.events {
				lastErr = b.Send(context.Background(), ev)
			}

			var perr *core.ProtocolError
			if !errors.As(lastErr, &perr) {
				t.Fatalf("expected protocol error, got %v", lastErr)
			}
			if perr.State != tt.state || perr.EventType != tt.eventType {
				t.Fatalf("expected %s/%s, got %s/%s", tt.state, tt.eventType, perr.State, perr.EventType)
			}
			if !errors.Is(lastErr, core.ErrProtocolViolation) {
				t.Fatal("protocol error must match ErrProtocolViolation")
			}
		})
	}
}

func TestExchangeViolationRejectsResult(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseChunk{Body: []byte("early")})
		// The violation is ignored here; the result must still be rejected.
		conn.Send(ctx, core.ResponseStart{Status: 200})
		conn.Send(ctx, core.ResponseChunk{})
		return nil
	})

	_, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if !errors.Is(err, core.ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestExchangeApplicationError(t *testing.T) {
	boom := errors.New("boom")
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseStart{Status: 200})
		return boom
	})

	_, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected application error, got %v", err)
	}
}

func TestExchangeApplicationPanic(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		panic("exploded")
	})

	_, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if err == nil {
		t.Fatal("expected error from panicking application")
	}
}

func TestExchangeIncompleteResponse(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseStart{Status: 200})
		return conn.Send(ctx, core.ResponseChunk{Body: []byte("partial"), More: true})
	})

	_, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if !errors.Is(err, core.ErrIncompleteResponse) {
		t.Fatalf("expected incomplete response, got %v", err)
	}
}

func TestExchangeResolvesBeforeApplicationReturns(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseStart{Status: 200})
		conn.Send(ctx, core.ResponseChunk{Body: []byte("done")})
		<-release
		return nil
	})

	result := make(chan error, 1)
	go func() {
		_, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("exchange did not resolve once the response was complete")
	}
}

func TestExchangeContextCancelled(t *testing.T) {
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Exchange(ctx, app, getRequest(""), WithLogger(quietLogger()))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestExchangeCancelsApplicationOnceResolved(t *testing.T) {
	stopped := make(chan error, 1)
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseStart{Status: 200})
		conn.Send(ctx, core.ResponseChunk{Body: []byte("done")})
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil
	})

	resp, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger()))
	if err != nil || string(resp.Body) != "done" {
		t.Fatalf("unexpected result %+v (%v)", resp, err)
	}
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled context, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("application context was not cancelled")
	}
}

func TestExchangeCancelsApplicationAfterViolation(t *testing.T) {
	stopped := make(chan struct{})
	app := core.ApplicationFunc(func(ctx context.Context, scope core.Scope, conn core.Connection) error {
		conn.Send(ctx, core.ResponseChunk{Body: []byte("early")})
		<-ctx.Done()
		close(stopped)
		return nil
	})

	var perr *core.ProtocolError
	if _, err := Exchange(context.Background(), app, getRequest(""), WithLogger(quietLogger())); !errors.As(err, &perr) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("application context was not cancelled")
	}
}
