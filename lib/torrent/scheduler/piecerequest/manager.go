// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package piecerequest encapsulates thread-safe piece queue bookkeeping for
// download workers. It is not responsible for sending nor receiving pieces
// in any way.
package piecerequest

import (
	"sync"

	"github.com/dung-h/LikeTorrent-242/utils/syncutil"
)

// Manager holds the queue of pieces awaiting download. Pieces enter the
// queue in rarest-first order and move FIFO thereafter; failed pieces are
// re-enqueued at the tail. A reserved piece is never handed to a second
// worker until it has been released.
type Manager struct {
	mu       sync.Mutex
	queue    []int
	reserved map[int]bool
	done     map[int]bool
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		reserved: make(map[int]bool),
		done:     make(map[int]bool),
	}
}

// Seed fills the queue with the given pieces in rarest-first order,
// clearing any previous queue state. numPeersByPiece holds per-piece peer
// availability counts.
func (m *Manager) Seed(pieces []int, numPeersByPiece syncutil.Counters) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = rarestFirstOrder(pieces, numPeersByPiece)
	m.reserved = make(map[int]bool)
	m.done = make(map[int]bool)
}

// Reserve dequeues the next piece which is not already reserved by another
// worker. Returns false if no such piece is available.
func (m *Manager) Reserve() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.queue) > 0 {
		i := m.queue[0]
		m.queue = m.queue[1:]
		if m.done[i] || m.reserved[i] {
			continue
		}
		m.reserved[i] = true
		return i, true
	}
	return 0, false
}

// Release returns a reserved piece to the tail of the queue after a failed
// attempt cycle.
func (m *Manager) Release(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reserved[i] {
		return
	}
	delete(m.reserved, i)
	m.queue = append(m.queue, i)
}

// MarkComplete removes a reserved piece from the queue permanently.
func (m *Manager) MarkComplete(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reserved, i)
	m.done[i] = true
}

// Remaining returns the number of pieces which are queued or reserved.
func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue) + len(m.reserved)
}

// Reserved returns whether piece i is currently reserved. Intended
// primarily for testing purposes.
func (m *Manager) Reserved(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reserved[i]
}
