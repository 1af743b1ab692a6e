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

// Package peerscore ranks peers by observed transfer performance. Fast,
// reliable peers are preferred when assigning pieces to download workers.
package peerscore

import (
	"sort"
	"sync"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/andres-erbsen/clock"
)

const (
	// defaultLatency is assumed for peers with no successful transfer yet.
	defaultLatency = 10 * time.Second

	// minLatency clamps the average latency used in weight calculation.
	minLatency = 100 * time.Millisecond

	// minWeight floors every peer's weight so no peer is ever starved
	// entirely.
	minWeight = 0.1
)

// Stats tracks transfer statistics of a single remote peer. Only the worker
// which owns the current attempt writes to a Stats entry; reads take the
// entry lock.
type Stats struct {
	mu sync.Mutex

	requests     int
	successes    int
	failures     int
	totalLatency time.Duration
	piecesUp     int64
	piecesDown   int64
	bytesUp      int64
	bytesDown    int64
	lastUpdate   time.Time
}

// Weight returns the scheduling weight of the peer:
// success_rate / avg_latency_seconds, clamped from below. New peers with no
// history default to a neutral weight.
func (s *Stats) Weight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight()
}

func (s *Stats) weight() float64 {
	if s.requests == 0 {
		return 1.0
	}
	successRate := float64(s.successes) / float64(s.requests)
	avg := defaultLatency
	if s.successes > 0 {
		avg = s.totalLatency / time.Duration(s.successes)
	}
	if avg < minLatency {
		avg = minLatency
	}
	w := successRate / avg.Seconds()
	if w < minWeight {
		w = minWeight
	}
	return w
}

// Snapshot is a read-only copy of a peer's statistics.
type Snapshot struct {
	Requests   int
	Successes  int
	Failures   int
	PiecesUp   int64
	PiecesDown int64
	BytesUp    int64
	BytesDown  int64
	Weight     float64
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Requests:   s.requests,
		Successes:  s.successes,
		Failures:   s.failures,
		PiecesUp:   s.piecesUp,
		PiecesDown: s.piecesDown,
		BytesUp:    s.bytesUp,
		BytesDown:  s.bytesDown,
		Weight:     s.weight(),
	}
}

// Set tracks statistics for every peer in the roster.
type Set struct {
	clk clock.Clock

	mu    sync.Mutex
	peers map[core.PeerID]*Stats
	order []core.PeerID
}

// NewSet creates a new Set.
func NewSet(clk clock.Clock) *Set {
	return &Set{
		clk:   clk,
		peers: make(map[core.PeerID]*Stats),
	}
}

// Touch ensures a Stats entry exists for peerID, creating a fresh one if
// the peer is new. Returns the entry.
func (s *Set) Touch(peerID core.PeerID) *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.peers[peerID]
	if !ok {
		entry = &Stats{lastUpdate: s.clk.Now()}
		s.peers[peerID] = entry
		s.order = append(s.order, peerID)
	}
	return entry
}

// RecordDownload records a download attempt from peerID.
func (s *Set) RecordDownload(
	peerID core.PeerID, latency time.Duration, nbytes int64, success bool) {

	entry := s.Touch(peerID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.requests++
	if success {
		entry.successes++
		entry.totalLatency += latency
		entry.piecesDown++
		entry.bytesDown += nbytes
	} else {
		entry.failures++
	}
	entry.lastUpdate = s.clk.Now()
}

// RecordUpload records a piece served to peerID.
func (s *Set) RecordUpload(peerID core.PeerID, nbytes int64) {
	entry := s.Touch(peerID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.piecesUp++
	entry.bytesUp += nbytes
	entry.lastUpdate = s.clk.Now()
}

// Rank returns candidates sorted by descending weight. Ties preserve the
// order in which peers first entered the set.
func (s *Set) Rank(candidates []core.PeerID) []core.PeerID {
	s.mu.Lock()
	insertion := make(map[core.PeerID]int, len(s.order))
	for i, id := range s.order {
		insertion[id] = i
	}
	weights := make(map[core.PeerID]float64, len(candidates))
	for _, id := range candidates {
		if entry, ok := s.peers[id]; ok {
			weights[id] = entry.Weight()
		} else {
			weights[id] = 1.0
		}
	}
	s.mu.Unlock()

	ranked := make([]core.PeerID, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := weights[ranked[i]], weights[ranked[j]]
		if wi != wj {
			return wi > wj
		}
		return insertion[ranked[i]] < insertion[ranked[j]]
	})
	return ranked
}

// Snapshot returns a copy of the statistics for peerID, and whether the
// peer is known.
func (s *Set) Snapshot(peerID core.PeerID) (Snapshot, bool) {
	s.mu.Lock()
	entry, ok := s.peers[peerID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return entry.Snapshot(), true
}

// Len returns the number of tracked peers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// PruneIdle removes peers whose last activity is older than ttl. Returns
// the number of peers removed.
func (s *Set) PruneIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clk.Now().Add(-ttl)
	var removed int
	var order []core.PeerID
	for _, id := range s.order {
		entry := s.peers[id]
		entry.mu.Lock()
		idle := entry.lastUpdate.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.peers, id)
			removed++
			continue
		}
		order = append(order, id)
	}
	s.order = order
	return removed
}
