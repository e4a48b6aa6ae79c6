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

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

// Applications resolves a route target to the application serving it.
type Applications interface {
	Application(name string) (core.Application, bool)
}

// HealthChecker reports whether an application can currently serve
// connections, typically because the broker it relays to is reachable.
type HealthChecker interface {
	IsApplicationAvailable(name string) bool
}

// Manager owns the sessions of every accepted connection. Each session is
// bound to exactly one application for its whole lifetime.
type Manager struct {
	sessions sync.Map
	routes   *routing.Table
	apps     Applications
	health   HealthChecker
	logger   *slog.Logger
}

func NewManager(
	routes *routing.Table,
	apps Applications,
	health HealthChecker,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		routes: routes,
		apps:   apps,
		health: health,
		logger: logger.With("component", "session-manager"),
	}
}

func (m *Manager) CreateSession(
	ctx context.Context,
	entrypointName string,
	clientID string,
	path string,
) (*core.Session, error) {
	route, ok := m.routes.Lookup(entrypointName, path)
	if !ok {
		return nil, fmt.Errorf("%w: source=%s path=%s", core.ErrNoRoute, entrypointName, path)
	}

	if m.apps == nil {
		return nil, fmt.Errorf("%w: application=%s", core.ErrApplicationNotFound, route.Target)
	}
	app, ok := m.apps.Application(route.Target)
	if !ok {
		return nil, fmt.Errorf("%w: application=%s", core.ErrApplicationNotFound, route.Target)
	}
	if m.health != nil && !m.health.IsApplicationAvailable(route.Target) {
		return nil, fmt.Errorf("%w: application=%s", core.ErrEndpointUnavailable, route.Target)
	}

	sessionCtx, sessionCancel := context.WithCancel(ctx)
	sess := &core.Session{
		ID:             uuid.New().String(),
		ClientID:       clientID,
		EntrypointName: entrypointName,
		Path:           path,
		Route:          route,
		Application:    app,
		Context:        sessionCtx,
		Cancel:         sessionCancel,
	}
	m.sessions.Store(sess.ID, sess)

	m.logger.Info("session created",
		"session_id", sess.ID,
		"client_id", clientID,
		"entrypoint", entrypointName,
		"path", path,
		"target", route.Target,
	)
	return sess, nil
}

func (m *Manager) DestroySession(sessionID string) error {
	val, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return fmt.Errorf("%w: id=%s", core.ErrSessionNotFound, sessionID)
	}

	sess := val.(*core.Session)
	sess.Cancel()

	m.logger.Info("session destroyed",
		"session_id", sessionID,
		"client_id", sess.ClientID,
	)
	return nil
}

func (m *Manager) DestroyAll() {
	m.sessions.Range(func(key, _ any) bool {
		_ = m.DestroySession(key.(string))
		return true
	})
}

func (m *Manager) ActiveCount() int {
	count := 0
	m.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) Lookup(sessionID string) (*core.Session, bool) {
	val, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return val.(*core.Session), true
}

func (m *Manager) SessionByClientID(clientID string) (*core.Session, bool) {
	var found *core.Session
	m.sessions.Range(func(_, val any) bool {
		sess := val.(*core.Session)
		if sess.ClientID == clientID {
			found = sess
			return false
		}
		return true
	})
	return found, found != nil
}
