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

import "context"

// Connection is the application's view of one logical connection: a pull
// of the next inbound event and a push of one outbound event.
type Connection interface {
	Receive(ctx context.Context) (ReceiveEvent, error)
	Send(ctx context.Context, ev SendEvent) error
}

// Application is invoked once per logical connection and runs until the
// connection's protocol is finished.
type Application interface {
	Serve(ctx context.Context, scope Scope, conn Connection) error
}

type ApplicationFunc func(ctx context.Context, scope Scope, conn Connection) error

func (f ApplicationFunc) Serve(ctx context.Context, scope Scope, conn Connection) error {
	return f(ctx, scope, conn)
}

// Entrypoint accepts connections from a host transport and bridges each of
// them to the application its route resolves to.
type Entrypoint interface {
	Name() string
	Type() string
	Start(ctx context.Context, manager SessionManager) error
	Stop(ctx context.Context) error
}

// Endpoint is a message broker an application can relay connections to.
type Endpoint interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers broker messages to one subscriber until ctx is
	// done, deliver fails, or Unsubscribe is called with the same id.
	Subscribe(ctx context.Context, subscriptionID string, deliver func(Message) error) error
	Unsubscribe(subscriptionID string) error
}

type SessionManager interface {
	CreateSession(ctx context.Context, entrypointName, clientID, path string) (*Session, error)
	DestroySession(sessionID string) error
}
