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

package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	textContentType   = "text/plain"
	binaryContentType = "application/octet-stream"
)

type Config struct {
	URL      string
	QueueIn  string
	QueueOut string
}

// ParseConfig reads url, queue_in and queue_out.
func ParseConfig(m map[string]string) (Config, error) {
	if m["url"] == "" {
		return Config{}, errors.New("rabbitmq: url is required")
	}
	return Config{URL: m["url"], QueueIn: m["queue_in"], QueueOut: m["queue_out"]}, nil
}

type Endpoint struct {
	name   string
	cfg    Config
	conn   *amqp.Connection
	logger *slog.Logger
	subs   *subscription.Registry

	// amqp091 channels are not safe for concurrent publishing.
	pubMu sync.Mutex
	pubCh *amqp.Channel
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
func (e *Endpoint) Type() string { return "rabbitmq" }

func (e *Endpoint) Connect(ctx context.Context) error {
	var err error
	e.conn, err = amqp.Dial(e.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	e.pubCh, err = e.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq publish channel: %w", err)
	}

	for _, q := range []string{e.cfg.QueueIn, e.cfg.QueueOut} {
		if q != "" {
			_, err := e.pubCh.QueueDeclare(q, true, false, false, false, nil)
			if err != nil {
				return fmt.Errorf("rabbitmq queue declare %s: %w", q, err)
			}
		}
	}

	e.logger.Info("rabbitmq endpoint connected", "name", e.name, "queue_in", e.cfg.QueueIn, "queue_out", e.cfg.QueueOut)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.pubCh != nil {
		e.pubCh.Close()
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

	consumerCh, err := e.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq consumer channel: %w", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	consumerTag := fmt.Sprintf("connection-bridge-%s-%s", e.name, subscriptionID)
	deliveries, err := consumerCh.Consume(
		e.cfg.QueueIn,
		consumerTag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	for {
		select {
		case <-subCtx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			delivery := d
			msg := fromDelivery(e.name, delivery)
			msg.Ack = func() error { return delivery.Ack(false) }
			if err := deliver(msg); err != nil {
				delivery.Nack(false, true)
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
	if e.cfg.QueueOut == "" || e.pubCh == nil {
		return nil
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	return e.pubCh.PublishWithContext(ctx,
		"",
		e.cfg.QueueOut,
		false,
		false,
		toPublishing(msg),
	)
}

func toPublishing(msg core.Message) amqp.Publishing {
	contentType := binaryContentType
	if msg.Text {
		contentType = textContentType
	}
	return amqp.Publishing{
		ContentType: contentType,
		Body:        msg.Payload,
		MessageId:   msg.ID,
		Timestamp:   msg.Timestamp,
	}
}

func fromDelivery(source string, d amqp.Delivery) core.Message {
	return core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   d.Body,
		Text:      d.ContentType == textContentType,
		Metadata:  map[string]string{"rabbitmq_routing_key": d.RoutingKey},
		Timestamp: time.Now().UTC(),
	}
}
