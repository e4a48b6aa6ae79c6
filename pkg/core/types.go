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

import (
	"context"
	"time"
)

type ConnectionKind int

const (
	KindExchange ConnectionKind = iota
	KindStream
)

func (k ConnectionKind) String() string {
	switch k {
	case KindExchange:
		return "http"
	case KindStream:
		return "websocket"
	default:
		return "unknown"
	}
}

// Header is a single header field as raw Latin-1 bytes.
type Header struct {
	Name  []byte
	Value []byte
}

func (h Header) clone() Header {
	return Header{
		Name:  append([]byte(nil), h.Name...),
		Value: append([]byte(nil), h.Value...),
	}
}

type PayloadKind int

const (
	PayloadBinary PayloadKind = iota
	PayloadText
)

// Payload is a stream message body. Text and binary payloads are kept apart
// so that a message is forwarded with the frame type it arrived with.
type Payload struct {
	kind PayloadKind
	data []byte
}

func TextPayload(s string) Payload {
	return Payload{kind: PayloadText, data: []byte(s)}
}

func BinaryPayload(b []byte) Payload {
	return Payload{kind: PayloadBinary, data: b}
}

func (p Payload) Kind() PayloadKind { return p.kind }
func (p Payload) IsText() bool      { return p.kind == PayloadText }
func (p Payload) Text() string      { return string(p.data) }
func (p Payload) Bytes() []byte     { return p.data }
func (p Payload) Len() int          { return len(p.data) }

// Message is the unit exchanged with a broker endpoint.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	ClientID  string            `json:"client_id"`
	Source    string            `json:"source"`
	Payload   []byte            `json:"payload"`
	Text      bool              `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp time.Time         `json:"timestamp"`
	Ack       func() error      `json:"-"`
}

type Route struct {
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	PathPrefix string `yaml:"path_prefix"`
}

// Session is one accepted logical connection and the application that
// serves it. A session is never reused across connections.
type Session struct {
	ID             string
	ClientID       string
	EntrypointName string
	Path           string
	Route          *Route
	Application    Application
	// Context is cancelled when the session is destroyed.
	Context context.Context
	Cancel  context.CancelFunc
}
