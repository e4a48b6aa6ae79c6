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

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	headerContentType = "content-type"
	textContentType   = "text/plain; charset=utf-8"
)

type Config struct {
	Brokers  []string
	TopicIn  string
	TopicOut string
	GroupID  string
}

// ParseConfig reads brokers (comma separated), topic_in, topic_out and
// group_id.
func ParseConfig(m map[string]string) (Config, error) {
	var brokers []string
	for _, b := range strings.Split(m["brokers"], ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return Config{}, errors.New("kafka: brokers is required")
	}
	return Config{
		Brokers:  brokers,
		TopicIn:  m["topic_in"],
		TopicOut: m["topic_out"],
		GroupID:  m["group_id"],
	}, nil
}

type Endpoint struct {
	name   string
	cfg    Config
	writer *kafka.Writer
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
func (e *Endpoint) Type() string { return "kafka" }

func (e *Endpoint) Connect(ctx context.Context) error {
	if e.cfg.TopicOut != "" {
		e.writer = &kafka.Writer{
			Addr:     kafka.TCP(e.cfg.Brokers...),
			Topic:    e.cfg.TopicOut,
			Balancer: &kafka.LeastBytes{},
		}
	}
	e.logger.Info("kafka endpoint connected",
		"name", e.name,
		"brokers", strings.Join(e.cfg.Brokers, ","),
		"topic_in", e.cfg.TopicIn,
		"topic_out", e.cfg.TopicOut,
	)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.writer != nil {
		return e.writer.Close()
	}
	return nil
}

func (e *Endpoint) groupID(subscriptionID string) string {
	groupID := e.cfg.GroupID
	if groupID == "" {
		groupID = "connection-bridge-" + e.name
	}
	return groupID + "-" + subscriptionID
}

func (e *Endpoint) Subscribe(ctx context.Context, subscriptionID string, deliver func(core.Message) error) error {
	if e.cfg.TopicIn == "" {
		<-ctx.Done()
		return nil
	}

	subCtx, release, err := e.subs.Start(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer release()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  e.cfg.Brokers,
		Topic:    e.cfg.TopicIn,
		GroupID:  e.groupID(subscriptionID),
		MaxWait:  500 * time.Millisecond,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(subCtx)
		if err != nil {
			if subCtx.Err() != nil {
				return nil
			}
			e.logger.Error("kafka fetch error", "subscription_id", subscriptionID, "error", err)
			return fmt.Errorf("kafka fetch: %w", err)
		}

		fetched := msg
		out := fromKafka(e.name, fetched)
		out.Ack = func() error {
			return reader.CommitMessages(subCtx, fetched)
		}
		if err := deliver(out); err != nil {
			return err
		}
	}
}

func (e *Endpoint) Unsubscribe(subscriptionID string) error {
	e.subs.Cancel(subscriptionID)
	return nil
}

func (e *Endpoint) Publish(ctx context.Context, msg core.Message) error {
	if e.writer == nil {
		return nil
	}
	return e.writer.WriteMessages(ctx, toKafka(msg))
}

func toKafka(msg core.Message) kafka.Message {
	km := kafka.Message{
		Key:   []byte(msg.ID),
		Value: msg.Payload,
	}
	if msg.Text {
		km.Headers = []kafka.Header{{Key: headerContentType, Value: []byte(textContentType)}}
	}
	return km
}

func fromKafka(source string, km kafka.Message) core.Message {
	text := false
	for _, h := range km.Headers {
		if h.Key == headerContentType && string(h.Value) == textContentType {
			text = true
		}
	}
	ts := km.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   km.Value,
		Text:      text,
		Metadata:  map[string]string{"kafka_key": string(km.Key), "kafka_topic": km.Topic},
		Timestamp: ts,
	}
}
