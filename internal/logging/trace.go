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

package logging

import (
	"log/slog"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// EventTracer logs every event crossing a bridge.
type EventTracer struct {
	logger *slog.Logger
}

func NewEventTracer(logger *slog.Logger) *EventTracer {
	return &EventTracer{logger: logger}
}

// With returns a tracer that adds args to every record, typically the route
// a connection was resolved through.
func (t *EventTracer) With(args ...any) *EventTracer {
	if t == nil {
		return nil
	}
	return &EventTracer{logger: t.logger.With(args...)}
}

// Trace is safe to call on a nil tracer.
func (t *EventTracer) Trace(connectionID, direction string, ev interface{ EventType() string }) {
	if t == nil {
		return
	}
	t.logger.Info("event",
		"connection_id", connectionID,
		"direction", direction,
		"event_type", core.EventTypeOf(ev),
		"payload_size", payloadSize(ev),
	)
}

func payloadSize(ev interface{ EventType() string }) int {
	switch e := ev.(type) {
	case core.ExchangeChunk:
		return len(e.Body)
	case core.ResponseChunk:
		return len(e.Body)
	case core.StreamMessage:
		return e.Payload.Len()
	case core.StreamSend:
		return e.Payload.Len()
	default:
		return 0
	}
}

// RouteTracer scopes t to route, or returns t unchanged when route is nil.
func RouteTracer(t *EventTracer, route *core.Route) *EventTracer {
	if route == nil {
		return t
	}
	return t.With("route_source", route.Source, "route_target", route.Target)
}
