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
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrIncompleteResponse  = errors.New("application returned before completing the response")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrChannelClosed       = errors.New("channel closed")
	ErrNoRoute             = errors.New("no route")
	ErrApplicationNotFound = errors.New("application not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrEndpointNotFound    = errors.New("endpoint not found")
	ErrEndpointUnavailable = errors.New("endpoint unavailable")
)

// ProtocolError reports an event the application sent in a state where it
// is not allowed, or of a kind the connection does not understand.
type ProtocolError struct {
	Kind      ConnectionKind
	State     string
	EventType string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s: unexpected %s event in state %s",
		e.Kind, ErrProtocolViolation, e.EventType, e.State)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }

// HTTPStatus maps an error returned while setting up or running a
// connection to the status a host should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoRoute), errors.Is(err, ErrApplicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEndpointUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, ErrIncompleteResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
