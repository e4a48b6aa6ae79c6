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

package routing

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wso2/api-platform/gateway/gateway-runtime/connection-bridge/pkg/core"
)

// snapshot maps an entrypoint name to its routes, longest path prefix first.
type snapshot map[string][]*core.Route

// Table resolves an entrypoint and request path to a route. Readers never
// block; writers publish a new snapshot.
type Table struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

func NewTable() *Table {
	t := &Table{}
	empty := snapshot{}
	t.current.Store(&empty)
	return t
}

func (t *Table) load() snapshot {
	return *t.current.Load()
}

func (s snapshot) clone() snapshot {
	next := make(snapshot, len(s))
	for k, v := range s {
		next[k] = append([]*core.Route(nil), v...)
	}
	return next
}

func (s snapshot) insert(route *core.Route) {
	routes := s[route.Source]
	for i, r := range routes {
		if r.PathPrefix == route.PathPrefix {
			routes[i] = route
			return
		}
	}
	routes = append(routes, route)
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})
	s[route.Source] = routes
}

// Add registers route, replacing any route with the same source and prefix.
func (t *Table) Add(route *core.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.load().clone()
	next.insert(route)
	t.current.Store(&next)
}

// Remove drops every route of source.
func (t *Table) Remove(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.load().clone()
	delete(next, source)
	t.current.Store(&next)
}

// Lookup returns the route of source whose path prefix is the longest match
// for path. A route without a prefix matches every path.
func (t *Table) Lookup(source, path string) (*core.Route, bool) {
	for _, r := range t.load()[source] {
		if r.PathPrefix == "" || strings.HasPrefix(path, r.PathPrefix) {
			return r, true
		}
	}
	return nil, false
}

// ReplaceAll swaps the whole table in one step.
func (t *Table) ReplaceAll(routes []*core.Route) {
	next := snapshot{}
	for _, r := range routes {
		next.insert(r)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Store(&next)
}

func (t *Table) Len() int {
	n := 0
	for _, routes := range t.load() {
		n += len(routes)
	}
	return n
}
