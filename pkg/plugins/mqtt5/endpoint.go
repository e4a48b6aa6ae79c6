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

package mqtt5

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	textContentType = "text/plain"
	subscriberQueue = 16
)

type Config struct {
	BrokerURL string
	TopicIn   string
	TopicOut  string
	QoS       byte
}

// ParseConfig reads broker_url, topic_in, topic_out and qos (default 1).
func ParseConfig(m map[string]string) (Config, error) {
	if m["broker_url"] == "" {
		return Config{}, errors.New("mqtt5: broker_url is required")
	}
	if _, err := url.Parse(m["broker_url"]); err != nil {
		return Config{}, fmt.Errorf("mqtt5 invalid URL: %w", err)
	}
	cfg := Config{BrokerURL: m["broker_url"], TopicIn: m["topic_in"], TopicOut: m["topic_out"], QoS: 1}
	if q := m["qos"]; q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 || n > 2 {
			return Config{}, fmt.Errorf("mqtt5: invalid qos %q", q)
		}
		cfg.QoS = byte(n)
	}
	return cfg, nil
}

// Endpoint holds one broker subscription on topic_in and fans each
// publish out to every local subscriber.
type Endpoint struct {
	name   string
	cfg    Config
	cm     *autopaho.ConnectionManager
	logger *slog.Logger
	subs   *subscription.Registry

	mu        sync.RWMutex
	consumers map[string]chan *paho.Publish
}

func New(name string, cfg Config, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		name:      name,
		cfg:       cfg,
		logger:    logger,
		subs:      subscription.NewRegistry(),
		consumers: make(map[string]chan *paho.Publish),
	}
}

func (e *Endpoint) Name() string { return e.name }
func (e *Endpoint) Type() string { return "mqtt5" }

func (e *Endpoint) Connect(ctx context.Context) error {
	serverURL, err := url.Parse(e.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqtt5 invalid URL: %w", err)
	}

	e.cm, err = autopaho.NewConnection(ctx, e.clientConfig(serverURL))
	if err != nil {
		return fmt.Errorf("mqtt5 connection: %w", err)
	}

	if err := e.cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("mqtt5 await connection: %w", err)
	}

	e.logger.Info("mqtt5 endpoint connected", "name", e.name, "broker", e.cfg.BrokerURL)
	return nil
}

// clientConfig subscribes topic_in on every connection up and routes
// received publishes to dispatch.
func (e *Endpoint) clientConfig(serverURL *url.URL) autopaho.ClientConfig {
	return autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			e.logger.Info("mqtt5 connection up", "name", e.name)
			if e.cfg.TopicIn == "" {
				return
			}
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: e.cfg.TopicIn, QoS: e.cfg.QoS}},
			}); err != nil {
				e.logger.Error("mqtt5 subscribe failed", "name", e.name, "topic", e.cfg.TopicIn, "error", err)
			}
		},
		OnConnectError: func(err error) {
			e.logger.Warn("mqtt5 connection attempt failed", "name", e.name, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "connection-bridge-" + e.name + "-" + uuid.New().String()[:8],
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					e.dispatch(pr.Packet)
					return true, nil
				},
			},
		},
	}
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.cm != nil {
		return e.cm.Disconnect(ctx)
	}
	return nil
}

// dispatch hands pub to every subscriber without blocking. A subscriber
// whose queue is full misses the publish.
func (e *Endpoint) dispatch(pub *paho.Publish) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, ch := range e.consumers {
		select {
		case ch <- pub:
		default:
			e.logger.Warn("mqtt5 subscriber queue full, dropping publish", "subscription_id", id, "topic", pub.Topic)
		}
	}
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

	ch := make(chan *paho.Publish, subscriberQueue)
	e.mu.Lock()
	e.consumers[subscriptionID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.consumers, subscriptionID)
		e.mu.Unlock()
	}()

	for {
		select {
		case <-subCtx.Done():
			return nil
		case pub := <-ch:
			if err := deliver(fromPublish(e.name, pub)); err != nil {
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
	if e.cfg.TopicOut == "" || e.cm == nil {
		return nil
	}
	_, err := e.cm.Publish(ctx, toPublish(e.cfg.TopicOut, e.cfg.QoS, msg))
	return err
}

func toPublish(topic string, qos byte, msg core.Message) *paho.Publish {
	pub := &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: msg.Payload,
	}
	if msg.Text {
		pub.Properties = &paho.PublishProperties{ContentType: textContentType}
	}
	return pub
}

func fromPublish(source string, pub *paho.Publish) core.Message {
	return core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Payload:   pub.Payload,
		Text:      pub.Properties != nil && pub.Properties.ContentType == textContentType,
		Metadata:  map[string]string{"mqtt_topic": pub.Topic},
		Timestamp: time.Now().UTC(),
		Ack:       func() error { return nil },
	}
}
