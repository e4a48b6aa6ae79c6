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

package channel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

func TestPipeDeliversInOrder(t *testing.T) {
	host, end := Pipe()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := host.Send(ctx, core.StreamMessage{Payload: core.BinaryPayload([]byte{byte(i)})}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		ev, err := end.Recv(ctx)
		if err != nil {
			t.Fatalf("recv failed: %v", err)
		}
		if got := ev.(core.StreamMessage).Payload.Bytes()[0]; got != byte(i) {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
}

func TestPipeOutboundDirection(t *testing.T) {
	host, end := Pipe()
	ctx := context.Background()

	end.Send(ctx, core.ResponseStart{Status: 201})
	end.Send(ctx, core.ResponseChunk{Body: []byte("x")})
	end.Close()

	ev, err := host.Recv(ctx)
	if err != nil || ev.(core.ResponseStart).Status != 201 {
		t.Fatalf("unexpected first outbound event %#v (%v)", ev, err)
	}
	if _, err := host.Recv(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := host.Recv(ctx); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	}
}

func TestPipeCloseAfterPendingValues(t *testing.T) {
	host, end := Pipe()
	ctx := context.Background()

	host.Send(ctx, core.ExchangeChunk{Body: []byte("last")})
	host.Close()

	if err := host.Send(ctx, core.ExchangeChunk{}); !errors.Is(err, core.ErrChannelClosed) {
		t.Fatalf("expected channel closed, got %v", err)
	}
	if _, err := end.Recv(ctx); err != nil {
		t.Fatalf("pending value lost: %v", err)
	}
	if _, err := end.Recv(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestPipeRecvHonoursContext(t *testing.T) {
	_, end := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := end.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
