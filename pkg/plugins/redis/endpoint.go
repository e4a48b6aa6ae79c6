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

// Package redis relays connections over Redis pub/sub channels.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

type Config struct {
	Addr       string
	Password   string
	DB         int
	ChannelIn  string
	ChannelOut string
}

// ParseConfig reads addr, password, db, channel_in and channel_out.
func ParseConfig(m map[string]string) (Config, error) {
	if m["addr"] == "" {
		return Config{}, errors.New("redis: addr is required")
	}
	cfg := Config{
		Addr:       m["addr"],
		Password:   m["password"],
		ChannelIn:  m["channel_in"],
		ChannelOut: m["channel_out"],
	}
	if db := m["db"]; db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("redis: invalid db %q", db)
		}
		cfg.DB = n
	}
	return cfg, nil
}

// Endpoint publishes to channel_out and subscribes channel_in. Redis pub/sub
// payloads are strings, so every delivery is a text message.
type Endpoint struct {
	name   string
	cfg    Config
	client *redis.Client
	logger *slog.Logger
	subs   *subscription.Registry
}

func New(name string, cfg Config, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		name:   name,
		cfg:    cfg,
		logger: logger,
		subs:   subscription.NewRegistry(),
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "redis" }

func (e *Endpoint) Connect(ctx context.Context) error {
	e.client = redis.NewClient(&redis.Options{
		Addr:     e.cfg.Addr,
		Password: e.cfg.Password,
		DB:       e.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	e.logger.Info("redis endpoint connected", "name", e.name, "addr", e.cfg.Addr, "channel_in", e.cfg.ChannelIn, "channel_out", e.cfg.ChannelOut)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *Endpoint) Subscribe(ctx context.Context, subscriptionID string, deliver func(core.Message) error) error {
	if e.cfg.ChannelIn == "" {
		<-ctx.Done()
		return nil
	}
	if e.client == nil {
		return core.ErrEndpointUnavailable
	}

	subCtx, release, err := e.subs.Start(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer release()

	pubsub := e.client.Subscribe(subCtx, e.cfg.ChannelIn)
	defer pubsub.Close()
	if _, err := pubsub.Receive(subCtx); err != nil {
		if subCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := deliver(fromRedis(e.name, m)); err != nil {
				return err
			}
		}
	}
}

func (e *Endpoint) Unsubscribe(subscriptionID string) error {
	e.subs.Cancel(subscriptionID)
	return nil
}

func (e *Endpoint) Publish(ctx context.Context, msg core.Message) error {
	if e.cfg.ChannelOut == "" || e.client == nil {
		return nil
	}
	return e.client.Publish(ctx, e.cfg.ChannelOut, msg.Payload).Err()
}

func fromRedis(source string, m *redis.Message) core.Message {
	return core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   []byte(m.Payload),
		Text:      true,
		Metadata:  map[string]string{"redis_channel": m.Channel},
		Timestamp: time.Now().UTC(),
		Ack:       func() error { return nil },
	}
}
