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
package conn

import (
	"fmt"
	"net"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/utils/bandwidth"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/zap"
)

// PendingConn represents a half-open connection initiated by a remote peer.
// The remote has sent ESTABLISH; the local side decides whether to grant an
// upload slot (Establish) or deny it (Choke).
type PendingConn struct {
	peerID core.PeerID
	nc     net.Conn
}

// PeerID returns the remote peer id, which is the zero value if the remote
// did not identify itself in the handshake.
func (pc *PendingConn) PeerID() core.PeerID {
	return pc.peerID
}

// Addr returns the remote network address.
func (pc *PendingConn) Addr() string {
	return pc.nc.RemoteAddr().String()
}

// Close closes the connection.
func (pc *PendingConn) Close() {
	pc.nc.Close()
}

// HandshakeResult wraps data returned from a successful handshake.
type HandshakeResult struct {
	Conn           *Conn
	RemoteBitfield *bitset.BitSet
}

// Handshaker establishes connections to other peers per the handshake
// protocol: the initiator sends ESTABLISH and is answered with either
// ESTABLISHED (upload slot granted) or CHOKED (denied, connection closed),
// followed by an optional bitfield exchange.
type Handshaker struct {
	config    Config
	stats     tally.Scope
	clk       clock.Clock
	bandwidth *bandwidth.Limiter
	peerID    core.PeerID
	logger    *zap.SugaredLogger
}

// NewHandshaker creates a new Handshaker.
func NewHandshaker(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peerID core.PeerID,
	logger *zap.SugaredLogger) *Handshaker {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "conn",
	})

	return &Handshaker{
		config:    config,
		stats:     stats,
		clk:       clk,
		bandwidth: bandwidth.NewLimiter(config.Bandwidth, bandwidth.WithLogger(logger)),
		peerID:    peerID,
		logger:    logger,
	}
}

// Initialize dials addr and runs the initiator side of the handshake for
// the given torrent. Returns ErrChoked if the remote denies an upload slot.
func (h *Handshaker) Initialize(
	addr string, info *storage.TorrentInfo) (*HandshakeResult, error) {

	nc, err := net.DialTimeout("tcp", addr, h.config.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	r, err := h.fullHandshake(nc, info)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

// Accept reads the ESTABLISH frame of a connection opened by a remote peer
// and upgrades it into a PendingConn. The caller decides admission.
func (h *Handshaker) Accept(nc net.Conn) (*PendingConn, error) {
	f, err := readControl(nc, h.config.HandshakeTimeout)
	if err != nil {
		if IsProtocolViolationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	if f.op != opEstablish {
		return nil, ProtocolViolationError{f.String()}
	}
	var peerID core.PeerID
	if f.arg != "" {
		peerID, err = core.NewPeerID(f.arg)
		if err != nil {
			return nil, fmt.Errorf("parse peer id: %s", err)
		}
	}
	return &PendingConn{peerID, nc}, nil
}

// Establish grants the pending connection an upload slot, replying
// ESTABLISHED and handling the optional bitfield exchange. The returned
// Conn is ready to serve requests.
func (h *Handshaker) Establish(
	pc *PendingConn, info *storage.TorrentInfo) (*Conn, error) {

	if err := sendControl(
		pc.nc, controlFrame{op: opEstablished}, h.config.HandshakeTimeout); err != nil {
		return nil, fmt.Errorf("send established: %s", err)
	}

	n := info.MetaInfo().NumPieces()
	c := h.newConn(pc.nc, pc.peerID, info, nil, true)

	// The remote may optionally send its bitfield before its first request.
	// Reciprocate with ours if it does; otherwise keep the frame for the
	// serve loop.
	f, err := readControl(pc.nc, h.config.ControlTimeout)
	if err != nil {
		return nil, fmt.Errorf("read post-handshake frame: %s", err)
	}
	if f.op == opBitfield {
		remote, err := decodeBitfieldHex(f.arg, n)
		if err != nil {
			return nil, ProtocolViolationError{f.String()}
		}
		c.remoteBitfield = remote
		reply := controlFrame{opBitfield, encodeBitfieldHex(info.Bitfield(), n)}
		if err := sendControl(pc.nc, reply, h.config.ControlTimeout); err != nil {
			return nil, fmt.Errorf("send bitfield: %s", err)
		}
	} else {
		c.pending = &f
	}
	return c, nil
}

// Choke denies the pending connection an upload slot, replying CHOKED and
// closing it.
func (h *Handshaker) Choke(pc *PendingConn) {
	if err := sendControl(
		pc.nc, controlFrame{op: opChoked}, h.config.HandshakeTimeout); err != nil {
		h.logger.With("peer", pc.peerID).Infof("Error sending choke: %s", err)
	}
	pc.nc.Close()
	h.stats.Counter("chokes_sent").Inc(1)
}

func (h *Handshaker) fullHandshake(
	nc net.Conn, info *storage.TorrentInfo) (*HandshakeResult, error) {

	establish := controlFrame{opEstablish, h.peerID.String()}
	if err := sendControl(nc, establish, h.config.HandshakeTimeout); err != nil {
		return nil, fmt.Errorf("send establish: %s", err)
	}
	f, err := readControl(nc, h.config.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("read handshake reply: %s", err)
	}
	switch f.op {
	case opEstablished:
	case opChoked:
		return nil, ErrChoked
	default:
		return nil, ProtocolViolationError{f.String()}
	}

	// Exchange bitfields: ours first, then the remote's reply.
	n := info.MetaInfo().NumPieces()
	ours := controlFrame{opBitfield, encodeBitfieldHex(info.Bitfield(), n)}
	if err := sendControl(nc, ours, h.config.ControlTimeout); err != nil {
		return nil, fmt.Errorf("send bitfield: %s", err)
	}
	f, err = readControl(nc, h.config.ControlTimeout)
	if err != nil {
		return nil, fmt.Errorf("read bitfield: %s", err)
	}
	if f.op != opBitfield {
		return nil, ProtocolViolationError{f.String()}
	}
	remote, err := decodeBitfieldHex(f.arg, n)
	if err != nil {
		return nil, ProtocolViolationError{f.String()}
	}

	c := h.newConn(nc, core.PeerID{}, info, remote, false)
	return &HandshakeResult{Conn: c, RemoteBitfield: remote}, nil
}

func (h *Handshaker) newConn(
	nc net.Conn,
	remotePeerID core.PeerID,
	info *storage.TorrentInfo,
	remoteBitfield *bitset.BitSet,
	openedByRemote bool) *Conn {

	return newConn(
		h.config,
		h.stats,
		h.clk,
		h.bandwidth,
		nc,
		h.peerID,
		remotePeerID,
		info.InfoHash(),
		info.MetaInfo().NumPieces(),
		remoteBitfield,
		openedByRemote,
		h.logger)
}
