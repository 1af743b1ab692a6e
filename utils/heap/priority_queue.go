// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package heap

import (
	"container/heap"
	"errors"
)

// Item is an entry in the priority queue. Lower priority pops first.
type Item struct {
	Value    interface{}
	Priority int
}

// PriorityQueue implements a min-heap over Items.
type PriorityQueue struct {
	queue itemQueue
}

// NewPriorityQueue creates a new PriorityQueue initialized with the given
// items.
func NewPriorityQueue(items ...*Item) *PriorityQueue {
	q := itemQueue(items)
	heap.Init(&q)
	return &PriorityQueue{q}
}

// Push adds item to the queue.
func (pq *PriorityQueue) Push(item *Item) {
	heap.Push(&pq.queue, item)
}

// Pop removes and returns the item with the lowest priority. Returns error
// if the queue is empty.
func (pq *PriorityQueue) Pop() (*Item, error) {
	if pq.queue.Len() == 0 {
		return nil, errors.New("queue is empty")
	}
	return heap.Pop(&pq.queue).(*Item), nil
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int {
	return pq.queue.Len()
}

type itemQueue []*Item

func (q itemQueue) Len() int { return len(q) }

func (q itemQueue) Less(i, j int) bool { return q[i].Priority < q[j].Priority }

func (q itemQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *itemQueue) Push(x interface{}) {
	*q = append(*q, x.(*Item))
}

func (q *itemQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
