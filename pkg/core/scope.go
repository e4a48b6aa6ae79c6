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
	"bytes"
	"fmt"
)

const (
	ASGIVersion = "3.0"
	SpecVersion = "2.1"
	HTTPVersion = "1.1"

	// StreamOrigin marks scopes of in-process stream connections. It has no
	// network meaning and only shows up in diagnostics.
	StreamOrigin = "http://xxx:99999"
)

// Scope is the per-connection metadata handed to an application once, when
// it is invoked. All accessors return copies, so a Scope cannot change after
// construction.
type Scope struct {
	kind        ConnectionKind
	httpVersion string
	scheme      string
	method      string
	path        string
	queryString []byte
	rootPath    string
	headers     []Header
}

// NewExchangeScope builds the scope of a request/response connection. Header
// names, values and the query string are converted to Latin-1 bytes.
func NewExchangeScope(method, path string, headers [][2]string, queryString string) (Scope, error) {
	if method == "" {
		return Scope{}, fmt.Errorf("%w: method is required", ErrInvalidRequest)
	}
	hs, err := HeadersFromPairs(headers)
	if err != nil {
		return Scope{}, err
	}
	qs, err := EncodeLatin1(queryString)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: query string: %v", ErrInvalidRequest, err)
	}
	return Scope{
		kind:        KindExchange,
		httpVersion: HTTPVersion,
		scheme:      "http",
		method:      method,
		path:        path,
		queryString: qs,
		headers:     hs,
	}, nil
}

// NewStreamScope builds the scope of a long-lived message stream.
func NewStreamScope(path string, headers [][2]string) (Scope, error) {
	hs, err := HeadersFromPairs(headers)
	if err != nil {
		return Scope{}, err
	}
	return Scope{
		kind:        KindStream,
		httpVersion: HTTPVersion,
		scheme:      "ws",
		path:        path,
		rootPath:    StreamOrigin,
		headers:     hs,
	}, nil
}

func (s Scope) Kind() ConnectionKind { return s.kind }
func (s Scope) ASGIVersion() string  { return ASGIVersion }
func (s Scope) SpecVersion() string  { return SpecVersion }
func (s Scope) HTTPVersion() string  { return s.httpVersion }
func (s Scope) Scheme() string       { return s.scheme }
func (s Scope) Method() string       { return s.method }
func (s Scope) Path() string         { return s.path }
func (s Scope) RootPath() string     { return s.rootPath }

// Origin is the synthetic origin marker of a stream scope.
func (s Scope) Origin() string { return s.rootPath }

func (s Scope) QueryString() []byte {
	return append([]byte(nil), s.queryString...)
}

func (s Scope) Headers() []Header {
	out := make([]Header, len(s.headers))
	for i, h := range s.headers {
		out[i] = h.clone()
	}
	return out
}

// Header returns the decoded value of the first header whose name matches
// name case-insensitively.
func (s Scope) Header(name string) (string, bool) {
	for _, h := range s.headers {
		if bytes.EqualFold(h.Name, []byte(name)) {
			return DecodeLatin1(h.Value), true
		}
	}
	return "", false
}
