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
package peerstore

import (
	"sync"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
)

type memEntry struct {
	peer     *core.PeerInfo
	lastSeen time.Time
}

// MemStore is an in-memory Store. Suitable for testing and small swarms.
type MemStore struct {
	config Config

	mu       sync.Mutex
	torrents map[core.InfoHash]map[core.PeerID]*memEntry
}

// NewMemStore creates a new MemStore.
func NewMemStore(config Config) *MemStore {
	return &MemStore{
		config:   config.applyDefaults(),
		torrents: make(map[core.InfoHash]map[core.PeerID]*memEntry),
	}
}

// UpdatePeer writes p under h.
func (s *MemStore) UpdatePeer(h core.InfoHash, p *core.PeerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers, ok := s.torrents[h]
	if !ok {
		peers = make(map[core.PeerID]*memEntry)
		s.torrents[h] = peers
	}
	copied := *p
	peers[p.PeerID] = &memEntry{&copied, time.Now()}
	return nil
}

// RemovePeer deletes the peer identified by peerID under h.
func (s *MemStore) RemovePeer(h core.InfoHash, peerID core.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.torrents[h], peerID)
	return nil
}

// GetPeers returns all live peers announcing for h.
func (s *MemStore) GetPeers(h core.InfoHash) ([]*core.PeerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.config.TTL)
	var result []*core.PeerInfo
	for peerID, e := range s.torrents[h] {
		if e.lastSeen.Before(cutoff) {
			delete(s.torrents[h], peerID)
			continue
		}
		copied := *e.peer
		result = append(result, &copied)
	}
	return result, nil
}

// Close noops.
func (s *MemStore) Close() error {
	return nil
}
