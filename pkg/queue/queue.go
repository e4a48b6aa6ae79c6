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

// Package queue provides the unbounded FIFO used to hand inbound events to
// an application that pulls them one at a time.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO with a non-blocking Enqueue and a suspending
// Dequeue. Every item is delivered to exactly one Dequeue caller, in enqueue
// order, regardless of how many callers are waiting.
//
// There is no Close. Producers signal the end of a stream with a domain
// event placed into the queue.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{})}
}

// Enqueue appends item to the tail and wakes all pending Dequeue callers.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// Dequeue pops the head of the queue, suspending until an item is available.
// A wake-up is shared by every waiter, so the buffer is re-checked after each
// one and a waiter that loses the race goes back to sleep.
//
// The only error is ctx.Err(); no item is consumed in that case.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryDequeue pops the head of the queue if there is one.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}
