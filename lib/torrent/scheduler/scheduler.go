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

// Package scheduler is the top-level swarm controller. It owns the torrent
// storage, the peer roster, the download worker pool, and the upload
// server.
package scheduler

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/announcer"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/conn"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/peerscore"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/piecerequest"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/uploadslot"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"
	"github.com/dung-h/LikeTorrent-242/utils/syncutil"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Scheduler drives a single torrent to completion and serves it to the
// swarm afterwards.
type Scheduler struct {
	config    Config
	stats     tally.Scope
	clk       clock.Clock
	pctx      core.PeerContext
	torrent   *storage.FileTorrent
	hs        *conn.Handshaker
	announcer *announcer.Announcer
	requests  *piecerequest.Manager
	scores    *peerscore.Set
	slots     *uploadslot.State
	netevents networkevent.Producer
	listener  net.Listener
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	state     State
	roster    map[core.PeerID]*core.PeerInfo
	bitfields map[core.PeerID]*bitset.BitSet
	conns     map[*conn.Conn]struct{}

	running *atomic.Bool
	paused  *atomic.Bool
	done    chan struct{}

	// Waits for background loops (accept, ticker, sweeps).
	wg sync.WaitGroup
}

// Option allows setting optional Scheduler parameters.
type Option func(*Scheduler)

// WithClock sets a custom clock, used to fake time in tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clk = clk }
}

// New creates a new Scheduler. The listener is owned by the Scheduler and
// closed on Stop.
func New(
	config Config,
	stats tally.Scope,
	pctx core.PeerContext,
	torrent *storage.FileTorrent,
	client announceclient.Client,
	netevents networkevent.Producer,
	listener net.Listener,
	logger *zap.SugaredLogger,
	opts ...Option) *Scheduler {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "scheduler",
	})

	s := &Scheduler{
		config:    config,
		stats:     stats,
		clk:       clock.New(),
		pctx:      pctx,
		torrent:   torrent,
		netevents: netevents,
		listener:  listener,
		logger:    logger,
		state:     Stopped,
		roster:    make(map[core.PeerID]*core.PeerInfo),
		bitfields: make(map[core.PeerID]*bitset.BitSet),
		conns:     make(map[*conn.Conn]struct{}),
		running:   atomic.NewBool(false),
		paused:    atomic.NewBool(false),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hs = conn.NewHandshaker(config.Conn, stats, s.clk, pctx.PeerID, logger)
	s.announcer = announcer.New(config.Announcer, client, s, s.clk, logger)
	s.requests = piecerequest.NewManager()
	s.scores = peerscore.NewSet(s.clk)
	s.slots = uploadslot.New(config.UploadSlot, s.clk, logger)
	return s
}

// Start launches the background loops: upload accept, announce ticker, slot
// rotation, and peer stats cleanup.
func (s *Scheduler) Start() {
	if !s.running.CAS(false, true) {
		return
	}
	s.netevents.Produce(networkevent.AddTorrentEvent(
		s.torrent.InfoHash(), s.pctx.PeerID, s.torrent.Bitfield()))

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.announcer.Ticker(s.done)
	}()
	go func() {
		defer s.wg.Done()
		s.rotationLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.cleanupLoop()
	}()
	s.logger.Infof("Scheduler started, listening on %s", s.listener.Addr())
}

// Stop terminates all loops, closes the listener, and announces departure
// from the swarm.
func (s *Scheduler) Stop() {
	if !s.running.CAS(true, false) {
		return
	}
	close(s.done)
	s.listener.Close()
	s.setState(Stopped)

	if _, err := s.announcer.Announce(
		s.torrent.InfoHash(), s.torrent.BytesDownloaded(), s.torrent.Complete(),
		announceclient.Stopped); err != nil {
		s.logger.Infof("Stop announce failed: %s", err)
	}

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Pause suspends download workers after their current piece attempt.
func (s *Scheduler) Pause() {
	if s.paused.CAS(false, true) {
		s.setState(Paused)
		s.logger.Info("Paused")
	}
}

// Resume lifts a pause. Callers restart Download to continue leeching.
func (s *Scheduler) Resume() {
	if s.paused.CAS(true, false) {
		s.logger.Info("Resumed")
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Torrent exposes the underlying torrent storage.
func (s *Scheduler) Torrent() *storage.FileTorrent {
	return s.torrent
}

// NumPeers returns the current roster size.
func (s *Scheduler) NumPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roster)
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// AnnounceTick implements announcer.Events. Fired periodically to refresh
// the peer roster.
func (s *Scheduler) AnnounceTick() {
	if !s.running.Load() {
		return
	}
	s.refreshRoster(announceclient.None)
}

// refreshRoster announces to the tracker and merges the returned peers into
// the roster. Tracker errors are logged and non-fatal.
func (s *Scheduler) refreshRoster(event announceclient.Event) {
	peers, err := s.announcer.Announce(
		s.torrent.InfoHash(), s.torrent.BytesDownloaded(), s.torrent.Complete(), event)
	if err != nil {
		s.stats.Counter("announce_failures").Inc(1)
		s.logger.Infof("Announce failed: %s", err)
		return
	}
	s.mu.Lock()
	for _, p := range peers {
		s.roster[p.PeerID] = p
		s.scores.Touch(p.PeerID)
	}
	s.mu.Unlock()
	s.netevents.Produce(networkevent.AnnounceEvent(
		s.torrent.InfoHash(), s.pctx.PeerID, len(peers)))
}

func (s *Scheduler) addConn(c *conn.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Scheduler) removeConn(c *conn.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// setBitfield records the bitfield learned from a peer during handshake.
func (s *Scheduler) setBitfield(peerID core.PeerID, b *bitset.BitSet) {
	if b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitfields[peerID] = b
}

// peerHasPiece returns whether the peer is believed to hold piece i. Peers
// with unknown bitfields are assumed complete.
func (s *Scheduler) peerHasPiece(peerID core.PeerID, i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bitfields[peerID]
	if !ok {
		return true
	}
	return b.Test(uint(i))
}

// availability counts, for every piece, the number of roster peers whose
// bitfield claims it.
func (s *Scheduler) availability() syncutil.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.torrent.NumPieces()
	counters := syncutil.NewCounters(n)
	for peerID := range s.roster {
		b, known := s.bitfields[peerID]
		for i := 0; i < n; i++ {
			if !known || b.Test(uint(i)) {
				counters.Increment(i)
			}
		}
	}
	return counters
}

// rosterSnapshot returns a copy of the current roster.
func (s *Scheduler) rosterSnapshot() []*core.PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]*core.PeerInfo, 0, len(s.roster))
	for _, p := range s.roster {
		peers = append(peers, p)
	}
	return peers
}

// rotationLoop periodically rotates upload slots.
func (s *Scheduler) rotationLoop() {
	t := s.clk.Timer(s.slots.RotationInterval())
	for {
		select {
		case <-t.C:
			s.slots.Rotate()
			t.Reset(s.slots.RotationInterval())
		case <-s.done:
			return
		}
	}
}

// cleanupLoop periodically prunes idle peers from the stats set.
func (s *Scheduler) cleanupLoop() {
	t := s.clk.Timer(s.config.PeerCleanupInterval)
	for {
		select {
		case <-t.C:
			if n := s.scores.PruneIdle(s.config.PeerTTL); n > 0 {
				s.logger.Infof("Pruned %d idle peers", n)
			}
			t.Reset(s.config.PeerCleanupInterval)
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "hash", s.torrent.InfoHash())
	return s.logger.With(keysAndValues...)
}

func (s *Scheduler) String() string {
	return fmt.Sprintf("scheduler(%s, state=%s)", s.torrent, s.State())
}

// sleep blocks for d or until the scheduler stops.
func (s *Scheduler) sleep(d time.Duration) {
	select {
	case <-s.clk.After(d):
	case <-s.done:
	}
}
