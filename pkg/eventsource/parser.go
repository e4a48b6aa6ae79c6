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

package eventsource

import (
	"bytes"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Type        string
	Data        string
	LastEventID string
	Origin      string
}

const defaultEventType = "message"

// parser interprets an event stream incrementally. Lines split across
// chunks are held until their terminator arrives; a CR that ends a chunk
// swallows an LF that starts the next one.
type parser struct {
	origin string

	buf     []byte
	skipLF  bool
	started bool

	data      strings.Builder
	eventType string
	lastID    string
}

var bom = []byte("\uFEFF")

func (p *parser) feed(chunk []byte, emit func(Event)) {
	if p.skipLF && len(chunk) > 0 {
		if chunk[0] == '\n' {
			chunk = chunk[1:]
		}
		p.skipLF = false
	}
	p.buf = append(p.buf, chunk...)
	if !p.started {
		if len(p.buf) < len(bom) && bytes.HasPrefix(bom, p.buf) {
			return
		}
		p.buf = bytes.TrimPrefix(p.buf, bom)
		p.started = true
	}

	off := 0
	for {
		i := bytes.IndexAny(p.buf[off:], "\r\n")
		if i < 0 {
			break
		}
		end := off + i
		line := string(p.buf[off:end])
		next := end + 1
		if p.buf[end] == '\r' {
			switch {
			case next == len(p.buf):
				p.skipLF = true
			case p.buf[next] == '\n':
				next++
			}
		}
		off = next
		p.processLine(line, emit)
	}
	p.buf = append(p.buf[:0], p.buf[off:]...)
}

func (p *parser) processLine(line string, emit func(Event)) {
	switch {
	case line == "":
		p.dispatch(emit)
	case line[0] == ':':
	default:
		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		p.processField(field, value)
	}
}

func (p *parser) processField(field, value string) {
	switch field {
	case "event":
		p.eventType = value
	case "data":
		p.data.WriteString(value)
		p.data.WriteByte('\n')
	case "id":
		if !strings.ContainsRune(value, 0) {
			p.lastID = value
		}
	case "retry":
		// Reconnection is not supported.
	}
}

func (p *parser) dispatch(emit func(Event)) {
	data := p.data.String()
	eventType := p.eventType
	p.data.Reset()
	p.eventType = ""
	if data == "" {
		return
	}
	data = strings.TrimSuffix(data, "\n")
	if eventType == "" {
		eventType = defaultEventType
	}
	emit(Event{Type: eventType, Data: data, LastEventID: p.lastID, Origin: p.origin})
}
