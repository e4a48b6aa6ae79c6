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

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/connection-bridge/config.yaml"

type Config struct {
	LogLevel     string              `yaml:"log_level"`
	Entrypoints  []EntrypointConfig  `yaml:"entrypoints"`
	Applications []ApplicationConfig `yaml:"applications"`
	Endpoints    []EndpointConfig    `yaml:"endpoints"`
	Routes       []RouteConfig       `yaml:"routes"`
}

type EntrypointConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Port int    `yaml:"port"`
	// MaxBody limits request bodies in bytes. Zero selects the entrypoint's
	// default.
	MaxBody int64 `yaml:"max_body"`
	// Codec selects the frame codec of a framed entrypoint: cbor or json.
	Codec string `yaml:"codec"`
}

type ApplicationConfig struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint"`
	Config   map[string]string `yaml:"config"`
}

type EndpointConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type RouteConfig struct {
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	PathPrefix string `yaml:"path_prefix"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ResolvePath picks the config file: an explicit flag value, then
// CONFIG_PATH, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks that names are unique and that every reference resolves.
func (c *Config) Validate() error {
	var errs []error

	entrypoints := make(map[string]bool, len(c.Entrypoints))
	for _, e := range c.Entrypoints {
		if e.Name == "" {
			errs = append(errs, errors.New("entrypoint without name"))
			continue
		}
		if entrypoints[e.Name] {
			errs = append(errs, fmt.Errorf("duplicate entrypoint %q", e.Name))
		}
		entrypoints[e.Name] = true
	}

	endpoints := make(map[string]bool, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if endpoints[e.Name] {
			errs = append(errs, fmt.Errorf("duplicate endpoint %q", e.Name))
		}
		endpoints[e.Name] = true
	}

	apps := make(map[string]bool, len(c.Applications))
	for _, a := range c.Applications {
		if apps[a.Name] {
			errs = append(errs, fmt.Errorf("duplicate application %q", a.Name))
		}
		apps[a.Name] = true
		if a.Endpoint != "" && !endpoints[a.Endpoint] {
			errs = append(errs, fmt.Errorf("application %q: unknown endpoint %q", a.Name, a.Endpoint))
		}
	}

	for _, r := range c.Routes {
		if !entrypoints[r.Source] {
			errs = append(errs, fmt.Errorf("route %s -> %s: unknown entrypoint", r.Source, r.Target))
		}
		if !apps[r.Target] {
			errs = append(errs, fmt.Errorf("route %s -> %s: unknown application", r.Source, r.Target))
		}
	}

	return errors.Join(errs...)
}

// Level parses log_level. Unknown or empty values select info.
func (c *Config) Level() slog.Level {
	return ParseLevel(c.LogLevel)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (rc RouteConfig) ToRoute() *core.Route {
	return &core.Route{
		Source:     rc.Source,
		Target:     rc.Target,
		PathPrefix: rc.PathPrefix,
	}
}

func (c *Config) RouteList() []*core.Route {
	routes := make([]*core.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		routes = append(routes, rc.ToRoute())
	}
	return routes
}
