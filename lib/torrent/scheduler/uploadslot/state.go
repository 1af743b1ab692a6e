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

// Package uploadslot provides upload slot lifecycle management and enforces
// the choke discipline. A remote peer may only be served pieces while it
// holds a slot.
package uploadslot

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/utils/timeutil"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
)

// Config defines State configuration.
type Config struct {

	// MaxSlots is the number of regular upload slots.
	MaxSlots int `yaml:"max_slots"`

	// OptimisticProb is the probability that a peer denied a regular slot is
	// admitted anyway. Discovers good partners which would otherwise never
	// be unchoked.
	OptimisticProb float64 `yaml:"optimistic_prob"`

	// RotationInterval is the period between slot rotations. On rotation,
	// only the most recently active slot is retained.
	RotationInterval time.Duration `yaml:"rotation_interval"`

	// DisableOptimistic turns off optimistic admissions. Used for
	// deterministic tests.
	DisableOptimistic bool `yaml:"disable_optimistic"`
}

func (c Config) applyDefaults() Config {
	if c.MaxSlots == 0 {
		c.MaxSlots = 4
	}
	if c.OptimisticProb == 0 {
		c.OptimisticProb = 0.1
	}
	if c.RotationInterval == 0 {
		c.RotationInterval = 30 * time.Second
	}
	return c
}

// State tracks which peers currently hold upload slots. At most MaxSlots
// regular slots are granted; one additional admission may be in flight via
// optimistic unchoke, so len(slots) never exceeds MaxSlots+1.
//
// State is thread-safe.
type State struct {
	config Config
	clk    clock.Clock
	logger *zap.SugaredLogger

	mu    sync.Mutex
	slots map[core.PeerID]time.Time
}

// New creates a new State.
func New(config Config, clk clock.Clock, logger *zap.SugaredLogger) *State {
	return &State{
		config: config.applyDefaults(),
		clk:    clk,
		logger: logger,
		slots:  make(map[core.PeerID]time.Time),
	}
}

// TryAdmit decides whether peerID may occupy an upload slot. A peer is
// admitted iff it already holds a slot, a regular slot is free, or the
// optimistic unchoke fires. Denied peers should be sent CHOKED and closed.
func (s *State) TryAdmit(peerID core.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[peerID]; ok {
		s.slots[peerID] = s.clk.Now()
		return true
	}
	if len(s.slots) < s.config.MaxSlots {
		s.grant(peerID)
		return true
	}
	if !s.config.DisableOptimistic &&
		len(s.slots) < s.config.MaxSlots+1 &&
		rand.Float64() < s.config.OptimisticProb {
		s.logger.With("peer", peerID).Info("Optimistic unchoke")
		s.grant(peerID)
		return true
	}
	return false
}

func (s *State) grant(peerID core.PeerID) {
	s.slots[peerID] = s.clk.Now()
	s.logger.With("peer", peerID).Infof(
		"Granted upload slot, %d of %d regular slots in use",
		len(s.slots), s.config.MaxSlots)
}

// Touch refreshes the activity timestamp of peerID's slot.
func (s *State) Touch(peerID core.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[peerID]; ok {
		s.slots[peerID] = s.clk.Now()
	}
}

// Release frees the slot held by peerID, if any.
func (s *State) Release(peerID core.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slots, peerID)
}

// Rotate retains only the most recently active slot and frees the others,
// opening a round of new admissions. Returns the freed peers.
func (s *State) Rotate() []core.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) <= 1 {
		return nil
	}
	times := make([]time.Time, 0, len(s.slots))
	for _, at := range s.slots {
		times = append(times, at)
	}
	keepAt := timeutil.MostRecent(times...)

	var freed []core.PeerID
	kept := false
	for peerID, at := range s.slots {
		if !kept && at.Equal(keepAt) {
			kept = true
			continue
		}
		delete(s.slots, peerID)
		freed = append(freed, peerID)
	}
	s.logger.Infof("Rotated upload slots, freed %d", len(freed))
	return freed
}

// RotationInterval returns the configured rotation period.
func (s *State) RotationInterval() time.Duration {
	return s.config.RotationInterval
}

// Len returns the number of occupied slots.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.slots)
}

// Holds returns whether peerID currently holds a slot.
func (s *State) Holds(peerID core.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.slots[peerID]
	return ok
}
