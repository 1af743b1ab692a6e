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
package scheduler

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage/piecereader"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"
)

// Download drives all missing pieces to completion, blocking until the
// torrent is complete or the scheduler is stopped or paused. On completion
// the scheduler transitions to Seeding and announces the completed event.
func (s *Scheduler) Download() error {
	if !s.running.Load() {
		return errors.New("scheduler not started")
	}
	if s.torrent.Complete() {
		s.toSeeding()
		return nil
	}
	s.setState(Downloading)
	start := s.clk.Now()

	s.refreshRoster(announceclient.Started)
	s.requests.Seed(s.torrent.MissingPieces(), s.availability())

	s.log().Infof(
		"Starting download: %d missing pieces, %d peers",
		s.requests.Remaining(), s.NumPeers())

	var wg sync.WaitGroup
	for w := 0; w < s.config.MaxWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.workerLoop(id)
		}(w)
	}
	wg.Wait()

	if !s.torrent.Complete() {
		if s.paused.Load() {
			return nil
		}
		return errors.New("download interrupted")
	}
	s.netevents.Produce(networkevent.TorrentCompleteEvent(
		s.torrent.InfoHash(), s.pctx.PeerID, s.clk.Now().Sub(start)))
	s.log().Info("Download complete")
	s.toSeeding()
	return nil
}

func (s *Scheduler) toSeeding() {
	s.setState(Seeding)
	s.refreshRoster(announceclient.Completed)
}

// Seed announces presence and serves pieces without downloading. An
// incomplete torrent serves whatever pieces it holds.
func (s *Scheduler) Seed() {
	s.setState(Seeding)
	s.refreshRoster(announceclient.Started)
}

// workerLoop pulls pieces off the queue and drives one attempt cycle per
// piece until no work remains.
func (s *Scheduler) workerLoop(id int) {
	for s.running.Load() && !s.paused.Load() {
		i, ok := s.requests.Reserve()
		if !ok {
			if s.requests.Remaining() == 0 || s.torrent.Complete() {
				return
			}
			// Every outstanding piece is reserved by another worker.
			s.sleep(s.config.IdlePollInterval)
			continue
		}
		if s.downloadPiece(i) {
			s.requests.MarkComplete(i)
			continue
		}
		s.requests.Release(i)
		s.log("worker", id, "piece", i).Info("All candidates failed, re-enqueueing piece")
		s.sleep(s.config.RequeueDelay)
	}
}

// downloadPiece tries up to MaxRetriesPerPiece candidate peers for piece i.
// Returns true once the piece has been written and verified.
func (s *Scheduler) downloadPiece(i int) bool {
	candidates := s.candidatesFor(i)
	if len(candidates) > s.config.MaxRetriesPerPiece {
		candidates = candidates[:s.config.MaxRetriesPerPiece]
	}
	for _, p := range candidates {
		if !s.running.Load() {
			return false
		}
		if s.attempt(p, i) {
			return true
		}
	}
	return false
}

// candidatesFor ranks roster peers believed to hold piece i by weight.
// Occasionally a random peer from the top of the list is promoted instead,
// so slow-but-alive peers keep getting a chance to prove themselves.
func (s *Scheduler) candidatesFor(i int) []*core.PeerInfo {
	var holders []core.PeerID
	byID := make(map[core.PeerID]*core.PeerInfo)
	for _, p := range s.rosterSnapshot() {
		if s.peerHasPiece(p.PeerID, i) {
			holders = append(holders, p.PeerID)
			byID[p.PeerID] = p
		}
	}
	ranked := s.scores.Rank(holders)

	if len(ranked) > 1 && rand.Float64() < s.config.ExplorationProb {
		top := 3
		if len(ranked) < top {
			top = len(ranked)
		}
		j := rand.Intn(top)
		ranked[0], ranked[j] = ranked[j], ranked[0]
	}

	result := make([]*core.PeerInfo, len(ranked))
	for k, id := range ranked {
		result[k] = byID[id]
	}
	return result
}

// attempt opens a session to p, requests piece i, and hands the payload to
// storage. The peer's stats are updated with the outcome.
func (s *Scheduler) attempt(p *core.PeerInfo, i int) bool {
	start := s.clk.Now()

	fail := func(err error) bool {
		s.scores.RecordDownload(p.PeerID, 0, 0, false)
		s.log("peer", p.PeerID, "piece", i).Infof("Piece attempt failed: %s", err)
		return false
	}

	r, err := s.hs.Initialize(p.Addr(), s.torrent.Stat())
	if err != nil {
		return fail(err)
	}
	defer r.Conn.Close()
	s.setBitfield(p.PeerID, r.RemoteBitfield)

	if !r.Conn.RemoteHasPiece(i) {
		return fail(errors.New("peer no longer holds piece"))
	}

	data, err := r.Conn.RequestPiece(i, s.torrent.PieceLength(i))
	if err != nil {
		return fail(err)
	}

	if err := s.torrent.WritePiece(piecereader.NewBuffer(data), i); err != nil {
		if err == storage.ErrPieceComplete {
			// Another worker raced us to it; the transfer itself was fine.
			s.scores.RecordDownload(p.PeerID, s.clk.Now().Sub(start), int64(len(data)), true)
			return true
		}
		// A hash mismatch means the peer served us garbage.
		return fail(err)
	}

	s.scores.RecordDownload(p.PeerID, s.clk.Now().Sub(start), int64(len(data)), true)
	s.stats.Counter("pieces_downloaded").Inc(1)
	s.netevents.Produce(networkevent.ReceivePieceEvent(
		s.torrent.InfoHash(), s.pctx.PeerID, p.PeerID, i))
	return true
}
