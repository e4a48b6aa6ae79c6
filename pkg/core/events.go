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

package core

// ReceiveEvent is an inbound event handed to the application by Receive.
// The concrete types are ConnectionOpened, ExchangeChunk, StreamMessage and
// Disconnected.
type ReceiveEvent interface {
	EventType() string
}

// SendEvent is an outbound event produced by the application. The concrete
// types are ResponseStart, ResponseChunk, Accepted, StreamSend and Closed.
type SendEvent interface {
	EventType() string
}

// ConnectionOpened is the first event of every stream connection.
type ConnectionOpened struct{}

func (ConnectionOpened) EventType() string { return "websocket.connect" }

type ExchangeChunk struct {
	Body []byte
	More bool
}

func (ExchangeChunk) EventType() string { return "http.request" }

type StreamMessage struct {
	Payload Payload
}

func (StreamMessage) EventType() string { return "websocket.receive" }

// Disconnected tells the application the peer is gone. Code is zero when the
// close code is unknown.
type Disconnected struct {
	Kind ConnectionKind
	Code int
}

func (d Disconnected) EventType() string { return d.Kind.String() + ".disconnect" }

type ResponseStart struct {
	Status  int
	Headers []Header
}

func (ResponseStart) EventType() string { return "http.response.start" }

type ResponseChunk struct {
	Body []byte
	More bool
}

func (ResponseChunk) EventType() string { return "http.response.body" }

// Accepted accepts a stream connection. An empty Subprotocol selects none.
type Accepted struct {
	Subprotocol string
}

func (Accepted) EventType() string { return "websocket.accept" }

type StreamSend struct {
	Payload Payload
}

func (StreamSend) EventType() string { return "websocket.send" }

// Closed closes a stream connection. A zero Code means normal closure.
type Closed struct {
	Code   int
	Reason string
}

func (Closed) EventType() string { return "websocket.close" }

// EventTypeOf returns the type name of ev, tolerating nil.
func EventTypeOf(ev interface{ EventType() string }) string {
	if ev == nil {
		return "<nil>"
	}
	return ev.EventType()
}
