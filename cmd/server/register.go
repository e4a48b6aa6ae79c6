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

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/apps/echo"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/apps/relay"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/framing"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/amqp1"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/framed"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/httpexchange"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/httpstream"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/kafka"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/mqtt5"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/rabbitmq"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/redis"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/solace"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins/ws"
)

func registerEntrypoints(cfg *config.Config, reg *plugins.Registry, logger *slog.Logger, tracer *logging.EventTracer) error {
	var errs []error
	for _, e := range cfg.Entrypoints {
		switch e.Type {
		case "websocket":
			reg.RegisterEntrypoint(ws.New(e.Name, e.Port, logger, tracer))
		case "http":
			reg.RegisterEntrypoint(httpexchange.New(e.Name, e.Port, e.MaxBody, logger, tracer))
		case "http_stream":
			reg.RegisterEntrypoint(httpstream.New(e.Name, e.Port, e.MaxBody, logger, tracer))
		case "framed":
			codec, err := framing.CodecByName(e.Codec)
			if err != nil {
				errs = append(errs, fmt.Errorf("entrypoint %q: %w", e.Name, err))
				continue
			}
			reg.RegisterEntrypoint(framed.New(e.Name, e.Port, codec, int(e.MaxBody), logger, tracer))
		default:
			logger.Warn("unknown entrypoint type", "name", e.Name, "type", e.Type)
		}
	}
	return errors.Join(errs...)
}

func newEndpoint(e config.EndpointConfig, logger *slog.Logger) (core.Endpoint, error) {
	switch e.Type {
	case "kafka":
		c, err := kafka.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return kafka.New(e.Name, c, logger), nil
	case "rabbitmq":
		c, err := rabbitmq.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return rabbitmq.New(e.Name, c, logger), nil
	case "mqtt5":
		c, err := mqtt5.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return mqtt5.New(e.Name, c, logger), nil
	case "amqp1":
		c, err := amqp1.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return amqp1.New(e.Name, c, logger), nil
	case "solace":
		c, err := solace.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return solace.New(e.Name, c, logger), nil
	case "redis":
		c, err := redis.ParseConfig(e.Config)
		if err != nil {
			return nil, err
		}
		return redis.New(e.Name, c, logger), nil
	default:
		return nil, fmt.Errorf("unknown endpoint type %q", e.Type)
	}
}

// registerEndpoints registers every endpoint that can be built. An endpoint
// with a bad config is left out, which makes applications depending on it
// unavailable.
func registerEndpoints(cfg *config.Config, reg *plugins.Registry, logger *slog.Logger) {
	for _, e := range cfg.Endpoints {
		ep, err := newEndpoint(e, logger)
		if err != nil {
			logger.Warn("skipping endpoint", "name", e.Name, "type", e.Type, "error", err)
			continue
		}
		reg.RegisterEndpoint(ep)
	}
}

func registerApplications(cfg *config.Config, reg *plugins.Registry, logger *slog.Logger) error {
	var errs []error
	for _, a := range cfg.Applications {
		switch a.Type {
		case "echo":
			reg.RegisterApplication(a.Name, echo.New(logger), "")
		case "relay":
			ep, ok := reg.Endpoint(a.Endpoint)
			if !ok {
				errs = append(errs, fmt.Errorf("application %q: %w: %q", a.Name, core.ErrEndpointNotFound, a.Endpoint))
				continue
			}
			reg.RegisterApplication(a.Name, relay.New(ep, logger), a.Endpoint)
		default:
			errs = append(errs, fmt.Errorf("application %q: unknown type %q", a.Name, a.Type))
		}
	}
	return errors.Join(errs...)
}
