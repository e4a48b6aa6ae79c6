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

package framing

import (
	"errors"
	"fmt"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

var ErrUnknownEvent = errors.New("framing: unknown event type")

// Envelope is the wire form of every event. Type carries the event type
// name; the other fields are set as the type requires. Header names and
// values are Latin-1 decoded strings.
type Envelope struct {
	Type        string      `json:"type" cbor:"type"`
	Body        []byte      `json:"body,omitempty" cbor:"body,omitempty"`
	More        bool        `json:"more_body,omitempty" cbor:"more_body,omitempty"`
	Status      int         `json:"status,omitempty" cbor:"status,omitempty"`
	Headers     [][2]string `json:"headers,omitempty" cbor:"headers,omitempty"`
	Text        *string     `json:"text,omitempty" cbor:"text,omitempty"`
	Bytes       []byte      `json:"bytes,omitempty" cbor:"bytes,omitempty"`
	Code        int         `json:"code,omitempty" cbor:"code,omitempty"`
	Reason      string      `json:"reason,omitempty" cbor:"reason,omitempty"`
	Subprotocol string      `json:"subprotocol,omitempty" cbor:"subprotocol,omitempty"`
}

const (
	typeConnect          = "websocket.connect"
	typeRequest          = "http.request"
	typeReceive          = "websocket.receive"
	typeHTTPDisconnect   = "http.disconnect"
	typeStreamDisconnect = "websocket.disconnect"
	typeResponseStart    = "http.response.start"
	typeResponseBody     = "http.response.body"
	typeAccept           = "websocket.accept"
	typeSend             = "websocket.send"
	typeClose            = "websocket.close"
)

func payloadFields(env *Envelope, p core.Payload) {
	if p.IsText() {
		s := p.Text()
		env.Text = &s
		return
	}
	env.Bytes = p.Bytes()
	if env.Bytes == nil {
		env.Bytes = []byte{}
	}
}

func payloadOf(env Envelope) core.Payload {
	if env.Text != nil {
		return core.TextPayload(*env.Text)
	}
	return core.BinaryPayload(env.Bytes)
}

// FromReceiveEvent builds the envelope for an inbound event.
func FromReceiveEvent(ev core.ReceiveEvent) (Envelope, error) {
	switch e := ev.(type) {
	case core.ConnectionOpened:
		return Envelope{Type: typeConnect}, nil
	case core.ExchangeChunk:
		return Envelope{Type: typeRequest, Body: e.Body, More: e.More}, nil
	case core.StreamMessage:
		env := Envelope{Type: typeReceive}
		payloadFields(&env, e.Payload)
		return env, nil
	case core.Disconnected:
		return Envelope{Type: e.EventType(), Code: e.Code}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownEvent, core.EventTypeOf(ev))
	}
}

// ReceiveEvent converts an envelope into an inbound event.
func (env Envelope) ReceiveEvent() (core.ReceiveEvent, error) {
	switch env.Type {
	case typeConnect:
		return core.ConnectionOpened{}, nil
	case typeRequest:
		body := env.Body
		if body == nil {
			body = []byte{}
		}
		return core.ExchangeChunk{Body: body, More: env.More}, nil
	case typeReceive:
		return core.StreamMessage{Payload: payloadOf(env)}, nil
	case typeHTTPDisconnect:
		return core.Disconnected{Kind: core.KindExchange, Code: env.Code}, nil
	case typeStreamDisconnect:
		return core.Disconnected{Kind: core.KindStream, Code: env.Code}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// FromSendEvent builds the envelope for an outbound event.
func FromSendEvent(ev core.SendEvent) (Envelope, error) {
	switch e := ev.(type) {
	case core.ResponseStart:
		headers := make([][2]string, 0, len(e.Headers))
		for _, h := range e.Headers {
			headers = append(headers, [2]string{core.DecodeLatin1(h.Name), core.DecodeLatin1(h.Value)})
		}
		return Envelope{Type: typeResponseStart, Status: e.Status, Headers: headers}, nil
	case core.ResponseChunk:
		return Envelope{Type: typeResponseBody, Body: e.Body, More: e.More}, nil
	case core.Accepted:
		return Envelope{Type: typeAccept, Subprotocol: e.Subprotocol}, nil
	case core.StreamSend:
		env := Envelope{Type: typeSend}
		payloadFields(&env, e.Payload)
		return env, nil
	case core.Closed:
		return Envelope{Type: typeClose, Code: e.Code, Reason: e.Reason}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownEvent, core.EventTypeOf(ev))
	}
}

// SendEvent converts an envelope into an outbound event.
func (env Envelope) SendEvent() (core.SendEvent, error) {
	switch env.Type {
	case typeResponseStart:
		headers, err := core.HeadersFromPairs(env.Headers)
		if err != nil {
			return nil, err
		}
		return core.ResponseStart{Status: env.Status, Headers: headers}, nil
	case typeResponseBody:
		return core.ResponseChunk{Body: env.Body, More: env.More}, nil
	case typeAccept:
		return core.Accepted{Subprotocol: env.Subprotocol}, nil
	case typeSend:
		return core.StreamSend{Payload: payloadOf(env)}, nil
	case typeClose:
		return core.Closed{Code: env.Code, Reason: env.Reason}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}
