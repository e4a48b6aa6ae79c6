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
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{"broker_url": "mqtt://localhost:1883", "topic_in": "in"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QoS != 1 || cfg.TopicIn != "in" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	for _, m := range []map[string]string{
		{},
		{"broker_url": "mqtt://localhost:1883", "qos": "3"},
		{"broker_url": "mqtt://localhost:1883", "qos": "x"},
	} {
		if _, err := ParseConfig(m); err == nil {
			t.Fatalf("expected error for %v", m)
		}
	}
}

func TestPublishConversion(t *testing.T) {
	pub := toPublish("out", 1, core.Message{Payload: []byte("hi"), Text: true})
	if pub.Topic != "out" || pub.Properties == nil || pub.Properties.ContentType != textContentType {
		t.Fatalf("unexpected publish %+v", pub)
	}
	msg := fromPublish("m", pub)
	if !msg.Text || string(msg.Payload) != "hi" || msg.Metadata["mqtt_topic"] != "out" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if toPublish("out", 0, core.Message{Payload: []byte{1}}).Properties != nil {
		t.Fatal("binary publish should carry no content type")
	}
}

func TestDispatchFansOut(t *testing.T) {
	e := New("m", Config{BrokerURL: "mqtt://x", TopicIn: "in"}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 2)
	for _, id := range []string{"a", "b"} {
		id := id
		go e.Subscribe(ctx, id, func(m core.Message) error {
			got <- id + ":" + string(m.Payload)
			return nil
		})
	}

	deadline := time.Now().Add(time.Second)
	for {
		e.mu.RLock()
		n := len(e.consumers)
		e.mu.RUnlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscribers did not register")
		}
		time.Sleep(time.Millisecond)
	}

	e.dispatch(&paho.Publish{Topic: "in", Payload: []byte("x")})
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			seen[s] = true
		case <-time.After(time.Second):
			t.Fatal("delivery timed out")
		}
	}
	if !seen["a:x"] || !seen["b:x"] {
		t.Fatalf("unexpected deliveries %v", seen)
	}

	e.Unsubscribe("a")
	deadline = time.Now().Add(time.Second)
	for {
		e.mu.RLock()
		n := len(e.consumers)
		e.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("unsubscribe did not remove the consumer")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClientConfigRoutesPublishesToSubscribers(t *testing.T) {
	e := New("m", Config{BrokerURL: "mqtt://localhost:1883", TopicIn: "in"}, quietLogger())
	serverURL, _ := url.Parse(e.cfg.BrokerURL)
	cfg := e.clientConfig(serverURL)

	if len(cfg.ServerUrls) != 1 || cfg.ServerUrls[0].Host != "localhost:1883" {
		t.Fatalf("unexpected server urls %v", cfg.ServerUrls)
	}
	if cfg.ClientConfig.ClientID == "" {
		t.Fatal("expected a client id")
	}
	if len(cfg.ClientConfig.OnPublishReceived) != 1 {
		t.Fatalf("expected one publish handler, got %d", len(cfg.ClientConfig.OnPublishReceived))
	}

	ch := make(chan *paho.Publish, 1)
	e.mu.Lock()
	e.consumers["a"] = ch
	e.mu.Unlock()

	handled, err := cfg.ClientConfig.OnPublishReceived[0](paho.PublishReceived{Packet: &paho.Publish{Topic: "in", Payload: []byte("x")}})
	if !handled || err != nil {
		t.Fatalf("expected handled publish, got %v (%v)", handled, err)
	}
	select {
	case pub := <-ch:
		if string(pub.Payload) != "x" {
			t.Fatalf("unexpected payload %q", pub.Payload)
		}
	default:
		t.Fatal("publish was not dispatched")
	}
}
