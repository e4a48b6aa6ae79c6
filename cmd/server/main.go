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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/plugins"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFlag := pflag.StringP("config", "c", "", "path to the config file (overrides CONFIG_PATH)")
	levelFlag := pflag.String("log-level", "", "log level: debug, info, warn or error (overrides log_level)")
	pflag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	configPath := config.ResolvePath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	level.Set(cfg.Level())
	if *levelFlag != "" {
		level.Set(config.ParseLevel(*levelFlag))
	}

	tracer := logging.NewEventTracer(logger.With("component", "events"))
	registry := plugins.NewRegistry(logger)

	registerEndpoints(cfg, registry, logger)
	if err := registerApplications(cfg, registry, logger); err != nil {
		logger.Error("failed to register applications", "error", err)
		os.Exit(1)
	}
	if err := registerEntrypoints(cfg, registry, logger, tracer); err != nil {
		logger.Error("failed to register entrypoints", "error", err)
		os.Exit(1)
	}

	routeTable := routing.NewTable()
	routeTable.ReplaceAll(cfg.RouteList())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := registry.ConnectEndpoints(ctx)
	logger.Info("endpoints connected", "connected", connected, "configured", len(cfg.Endpoints))

	mgr := session.NewManager(routeTable, registry, registry, logger)

	watcher := config.NewWatcher(configPath, routeTable, logger)
	watcher.OnReload(func(c *config.Config) {
		if *levelFlag == "" {
			level.Set(c.Level())
		}
	})
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	registry.StartEntrypoints(ctx, mgr)

	logger.Info("connection bridge started", "config", configPath, "routes", routeTable.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down connection bridge", "active_sessions", mgr.ActiveCount())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	mgr.DestroyAll()
	registry.StopAll(shutdownCtx)

	logger.Info("connection bridge stopped")
}
