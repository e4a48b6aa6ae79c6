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

// Package amqp1 relays connections to an AMQP 1.0 broker queue.
package amqp1

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	propPayloadKind = "payload_kind"
	payloadKindText = "text"
)

type Config struct {
	URL      string
	QueueIn  string
	QueueOut string
}

// ParseConfig reads url, queue_in and queue_out.
func ParseConfig(m map[string]string) (Config, error) {
	if m["url"] == "" {
		return Config{}, errors.New("amqp1: url is required")
	}
	return Config{URL: m["url"], QueueIn: m["queue_in"], QueueOut: m["queue_out"]}, nil
}

type Endpoint struct {
	name   string
	cfg    Config
	conn   *amqp.Conn
	logger *slog.Logger
	subs   *subscription.Registry

	sendMu   sync.Mutex
	sendSess *amqp.Session
	sender   *amqp.Sender
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
func (e *Endpoint) Type() string { return "amqp1" }

func (e *Endpoint) Connect(ctx context.Context) error {
	var err error
	e.conn, err = amqp.Dial(ctx, e.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("amqp1 dial: %w", err)
	}

	if e.cfg.QueueOut != "" {
		e.sendSess, err = e.conn.NewSession(ctx, nil)
		if err != nil {
			return fmt.Errorf("amqp1 send session: %w", err)
		}
		e.sender, err = e.sendSess.NewSender(ctx, e.cfg.QueueOut, nil)
		if err != nil {
			return fmt.Errorf("amqp1 sender: %w", err)
		}
	}

	e.logger.Info("amqp1 endpoint connected", "name", e.name, "queue_in", e.cfg.QueueIn, "queue_out", e.cfg.QueueOut)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.sender != nil {
		e.sender.Close(ctx)
	}
	if e.sendSess != nil {
		e.sendSess.Close(ctx)
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func (e *Endpoint) Subscribe(ctx context.Context, subscriptionID string, deliver func(core.Message) error) error {
	if e.cfg.QueueIn == "" {
		<-ctx.Done()
		return nil
	}
	if e.conn == nil {
		return core.ErrEndpointUnavailable
	}

	subCtx, release, err := e.subs.Start(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer release()

	recvSess, err := e.conn.NewSession(subCtx, nil)
	if err != nil {
		return fmt.Errorf("amqp1 consumer session: %w", err)
	}
	defer recvSess.Close(context.Background())

	receiver, err := recvSess.NewReceiver(subCtx, e.cfg.QueueIn, &amqp.ReceiverOptions{
		Credit: 1,
	})
	if err != nil {
		return fmt.Errorf("amqp1 receiver: %w", err)
	}
	defer receiver.Close(context.Background())

	for {
		msg, err := receiver.Receive(subCtx, nil)
		if err != nil {
			if subCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("amqp1 receive: %w", err)
		}

		received := msg
		out := fromAMQP(e.name, e.cfg.QueueIn, received)
		out.Ack = func() error { return receiver.AcceptMessage(subCtx, received) }
		if err := deliver(out); err != nil {
			receiver.ReleaseMessage(context.Background(), received)
			return err
		}
	}
}

func (e *Endpoint) Unsubscribe(subscriptionID string) error {
	e.subs.Cancel(subscriptionID)
	return nil
}

func (e *Endpoint) Publish(ctx context.Context, msg core.Message) error {
	if e.sender == nil {
		return nil
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return e.sender.Send(ctx, toAMQP(msg), nil)
}

func toAMQP(msg core.Message) *amqp.Message {
	out := &amqp.Message{
		Data: [][]byte{msg.Payload},
		Properties: &amqp.MessageProperties{
			MessageID: msg.ID,
		},
	}
	if msg.Text {
		out.ApplicationProperties = map[string]any{propPayloadKind: payloadKindText}
	}
	return out
}

func fromAMQP(source, queue string, msg *amqp.Message) core.Message {
	kind, _ := msg.ApplicationProperties[propPayloadKind].(string)
	return core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   msg.GetData(),
		Text:      kind == payloadKindText,
		Metadata:  map[string]string{"amqp_queue": queue},
		Timestamp: time.Now().UTC(),
	}
}
