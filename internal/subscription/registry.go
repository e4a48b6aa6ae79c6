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

// Package subscription tracks the live broker subscriptions of an endpoint
// so that each one can be cancelled by id.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrDuplicate = errors.New("subscription already active")

type Registry struct {
	mu   sync.Mutex
	subs map[string]*entry
}

type entry struct {
	cancel context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*entry)}
}

// Start registers id and returns a context that is cancelled by Cancel,
// CancelAll or the parent. release must be called when the subscription
// loop exits.
func (r *Registry) Start(parent context.Context, id string) (ctx context.Context, release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	ctx, cancel := context.WithCancel(parent)
	e := &entry{cancel: cancel}
	r.subs[id] = e
	release = func() {
		cancel()
		r.mu.Lock()
		if r.subs[id] == e {
			delete(r.subs, id)
		}
		r.mu.Unlock()
	}
	return ctx, release, nil
}

// Cancel stops the subscription with id. It reports whether one was active.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

func (r *Registry) CancelAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range subs {
		e.cancel()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
