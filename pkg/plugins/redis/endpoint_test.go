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

package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{"addr": "localhost:6379", "db": "2", "channel_in": "in"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB != 2 || cfg.ChannelIn != "in" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	tests := []map[string]string{
		{},
		{"addr": "localhost:6379", "db": "-1"},
		{"addr": "localhost:6379", "db": "zero"},
	}
	for _, m := range tests {
		if _, err := ParseConfig(m); err == nil {
			t.Fatalf("expected error for %v", m)
		}
	}
}

func TestFromRedis(t *testing.T) {
	msg := fromRedis("r", &redis.Message{Channel: "in", Payload: "hello"})
	if !msg.Text || string(msg.Payload) != "hello" || msg.Metadata["redis_channel"] != "in" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestSubscribeBeforeConnect(t *testing.T) {
	e := New("r", Config{Addr: "x", ChannelIn: "in"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := e.Subscribe(context.Background(), "s", func(core.Message) error { return nil })
	if !errors.Is(err, core.ErrEndpointUnavailable) {
		t.Fatalf("expected endpoint unavailable, got %v", err)
	}
}
