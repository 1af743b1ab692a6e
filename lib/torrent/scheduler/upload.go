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
	"net"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/conn"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
)

// acceptLoop accepts inbound peer connections and spawns a handler per
// connection. A bounded accept deadline lets the loop recheck the running
// flag.
func (s *Scheduler) acceptLoop() {
	for s.running.Load() {
		if l, ok := s.listener.(*net.TCPListener); ok {
			l.SetDeadline(time.Now().Add(s.config.AcceptTimeout))
		}
		nc, err := s.listener.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			// Listener closed on Stop.
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(nc)
		}()
	}
}

// handleConn runs the responder handshake and serve loop for one inbound
// connection, subject to the upload slot discipline.
func (s *Scheduler) handleConn(nc net.Conn) {
	defer nc.Close()

	pc, err := s.hs.Accept(nc)
	if err != nil {
		s.log().Infof("Error accepting handshake: %s", err)
		return
	}
	key := s.slotKey(pc)

	if !s.slots.TryAdmit(key) {
		s.log("peer", key).Info("No free upload slot, choking")
		s.netevents.Produce(networkevent.ConnChokedEvent(
			s.torrent.InfoHash(), s.pctx.PeerID, key))
		s.hs.Choke(pc)
		return
	}

	c, err := s.hs.Establish(pc, s.torrent.Stat())
	if err != nil {
		s.log("peer", key).Infof("Error establishing conn: %s", err)
		return
	}
	s.addConn(c)
	defer s.removeConn(c)
	defer c.Close()
	if c.RemoteBitfield() != nil && pc.PeerID() != (core.PeerID{}) {
		s.setBitfield(pc.PeerID(), c.RemoteBitfield())
	}

	err = c.ServeRequests(
		func(i int) (storage.PieceReader, error) {
			return s.torrent.GetPieceReader(i)
		},
		func(i int) {
			s.slots.Touch(key)
			s.scores.RecordUpload(key, s.torrent.PieceLength(i))
			s.stats.Counter("pieces_uploaded").Inc(1)
			s.netevents.Produce(networkevent.SendPieceEvent(
				s.torrent.InfoHash(), s.pctx.PeerID, key, i))
		})
	if err != nil && !conn.IsTimeoutError(err) {
		s.log("peer", key).Infof("Serve loop exited: %s", err)
	}
}

// slotKey identifies the remote end for slot accounting. Peers which do not
// identify themselves in the handshake are keyed by address hash.
func (s *Scheduler) slotKey(pc *conn.PendingConn) core.PeerID {
	if pc.PeerID() != (core.PeerID{}) {
		return pc.PeerID()
	}
	key, err := core.HashedPeerID(pc.Addr())
	if err != nil {
		return core.PeerID{}
	}
	return key
}
