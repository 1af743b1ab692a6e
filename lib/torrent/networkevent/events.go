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

// Package networkevent is the optional swarm observer: it records transfer
// events for offline analysis. It is not required for correctness.
package networkevent

import (
	"encoding/json"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/utils/log"

	uuid "github.com/satori/go.uuid"
	"github.com/willf/bitset"
)

// Name defines event names.
type Name string

// Possible event names.
const (
	AddTorrent      Name = "add_torrent"
	Announce        Name = "announce"
	ReceivePiece    Name = "receive_piece"
	SendPiece       Name = "send_piece"
	ConnChoked      Name = "conn_choked"
	TorrentComplete Name = "torrent_complete"
)

// Event consolidates all possible event fields.
type Event struct {
	ID      string    `json:"id"`
	Name    Name      `json:"event"`
	Torrent string    `json:"torrent"`
	Self    string    `json:"self"`
	Time    time.Time `json:"ts"`

	// Optional fields.
	Peer       string `json:"peer,omitempty"`
	Piece      int    `json:"piece,omitempty"`
	Bitfield   []bool `json:"bitfield,omitempty"`
	NumPeers   int    `json:"num_peers,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func baseEvent(name Name, h core.InfoHash, self core.PeerID) *Event {
	return &Event{
		ID:      uuid.NewV4().String(),
		Name:    name,
		Torrent: h.String(),
		Self:    self.String(),
		Time:    time.Now(),
	}
}

// JSON converts event into a json string primarily for logging purposes.
func (e *Event) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		log.Errorf("json marshal error %s", err)
		return ""
	}
	return string(b)
}

// AddTorrentEvent returns an event for an added torrent with initial
// bitfield.
func AddTorrentEvent(h core.InfoHash, self core.PeerID, b *bitset.BitSet) *Event {
	e := baseEvent(AddTorrent, h, self)
	bools := make([]bool, b.Len())
	for i := uint(0); i < b.Len(); i++ {
		bools[i] = b.Test(i)
	}
	e.Bitfield = bools
	return e
}

// AnnounceEvent returns an event for a completed announce which handed out
// numPeers peers.
func AnnounceEvent(h core.InfoHash, self core.PeerID, numPeers int) *Event {
	e := baseEvent(Announce, h, self)
	e.NumPeers = numPeers
	return e
}

// ReceivePieceEvent returns an event for a piece received from peer.
func ReceivePieceEvent(h core.InfoHash, self core.PeerID, peer core.PeerID, piece int) *Event {
	e := baseEvent(ReceivePiece, h, self)
	e.Peer = peer.String()
	e.Piece = piece
	return e
}

// SendPieceEvent returns an event for a piece sent to peer.
func SendPieceEvent(h core.InfoHash, self core.PeerID, peer core.PeerID, piece int) *Event {
	e := baseEvent(SendPiece, h, self)
	e.Peer = peer.String()
	e.Piece = piece
	return e
}

// ConnChokedEvent returns an event for a remote peer denied an upload slot.
func ConnChokedEvent(h core.InfoHash, self core.PeerID, peer core.PeerID) *Event {
	e := baseEvent(ConnChoked, h, self)
	e.Peer = peer.String()
	return e
}

// TorrentCompleteEvent returns an event for a completed torrent.
func TorrentCompleteEvent(h core.InfoHash, self core.PeerID, duration time.Duration) *Event {
	e := baseEvent(TorrentComplete, h, self)
	e.DurationMS = duration.Milliseconds()
	return e
}
