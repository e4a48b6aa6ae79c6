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

package solace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/subscription"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"solace.dev/go/messaging"
	"solace.dev/go/messaging/pkg/solace"
	"solace.dev/go/messaging/pkg/solace/config"
	"solace.dev/go/messaging/pkg/solace/message"
	"solace.dev/go/messaging/pkg/solace/resource"
)

const terminateGrace = 5 * time.Second

type Config struct {
	Host     string
	VPN      string
	Username string
	Password string
	TopicIn  string
	TopicOut string
}

// ParseConfig reads host, vpn, username, password, topic_in and topic_out.
func ParseConfig(m map[string]string) (Config, error) {
	if m["host"] == "" {
		return Config{}, errors.New("solace: host is required")
	}
	vpn := m["vpn"]
	if vpn == "" {
		vpn = "default"
	}
	return Config{
		Host:     m["host"],
		VPN:      vpn,
		Username: m["username"],
		Password: m["password"],
		TopicIn:  m["topic_in"],
		TopicOut: m["topic_out"],
	}, nil
}

type Endpoint struct {
	name    string
	cfg     Config
	service solace.MessagingService
	logger  *slog.Logger
	subs    *subscription.Registry

	pubMu     sync.Mutex
	publisher solace.DirectMessagePublisher
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
func (e *Endpoint) Type() string { return "solace" }

func (e *Endpoint) Connect(ctx context.Context) error {
	var err error
	e.service, err = messaging.NewMessagingServiceBuilder().
		FromConfigurationProvider(config.ServicePropertyMap{
			config.TransportLayerPropertyHost:                e.cfg.Host,
			config.ServicePropertyVPNName:                    e.cfg.VPN,
			config.AuthenticationPropertySchemeBasicUserName: e.cfg.Username,
			config.AuthenticationPropertySchemeBasicPassword: e.cfg.Password,
		}).Build()
	if err != nil {
		return fmt.Errorf("solace build: %w", err)
	}
	if err = e.service.Connect(); err != nil {
		return fmt.Errorf("solace connect: %w", err)
	}

	if e.cfg.TopicOut != "" {
		e.publisher, err = e.service.CreateDirectMessagePublisherBuilder().Build()
		if err != nil {
			return fmt.Errorf("solace publisher build: %w", err)
		}
		if err = e.publisher.Start(); err != nil {
			return fmt.Errorf("solace publisher start: %w", err)
		}
	}

	e.logger.Info("solace endpoint connected", "name", e.name, "host", e.cfg.Host)
	return nil
}

func (e *Endpoint) Disconnect(ctx context.Context) error {
	e.subs.CancelAll()
	if e.publisher != nil {
		e.publisher.Terminate(terminateGrace)
	}
	if e.service != nil {
		return e.service.Disconnect()
	}
	return nil
}

func (e *Endpoint) Subscribe(ctx context.Context, subscriptionID string, deliver func(core.Message) error) error {
	if e.cfg.TopicIn == "" {
		<-ctx.Done()
		return nil
	}
	if e.service == nil {
		return core.ErrEndpointUnavailable
	}

	subCtx, release, err := e.subs.Start(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer release()

	receiver, err := e.service.CreateDirectMessageReceiverBuilder().
		WithSubscriptions(resource.TopicSubscriptionOf(e.cfg.TopicIn)).
		Build()
	if err != nil {
		return fmt.Errorf("solace receiver build: %w", err)
	}
	if err = receiver.Start(); err != nil {
		return fmt.Errorf("solace receiver start: %w", err)
	}
	defer receiver.Terminate(terminateGrace)

	// The receive callback runs on the solace dispatch goroutine; deliver is
	// called from this goroutine only.
	inbound := make(chan core.Message, 64)
	err = receiver.ReceiveAsync(func(in message.InboundMessage) {
		select {
		case inbound <- fromInbound(e.name, e.cfg.TopicIn, in):
		case <-subCtx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("solace receive: %w", err)
	}

	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg := <-inbound:
			if err := deliver(msg); err != nil {
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
	if e.publisher == nil {
		return nil
	}
	builder := e.service.MessageBuilder()
	var (
		out message.OutboundMessage
		err error
	)
	if msg.Text {
		out, err = builder.BuildWithStringPayload(string(msg.Payload))
	} else {
		out, err = builder.BuildWithByteArrayPayload(msg.Payload)
	}
	if err != nil {
		return fmt.Errorf("solace message build: %w", err)
	}

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	return e.publisher.Publish(out, resource.TopicOf(e.cfg.TopicOut))
}

type inboundPayload interface {
	GetPayloadAsBytes() ([]byte, bool)
	GetPayloadAsString() (string, bool)
}

func fromInbound(source, topic string, in inboundPayload) core.Message {
	msg := core.Message{
		ID:        uuid.New().String(),
		Source:    source,
		Metadata:  map[string]string{"solace_topic": topic},
		Timestamp: time.Now().UTC(),
		Ack:       func() error { return nil },
	}
	if s, ok := in.GetPayloadAsString(); ok {
		msg.Payload = []byte(s)
		msg.Text = true
		return msg
	}
	msg.Payload, _ = in.GetPayloadAsBytes()
	return msg
}
