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
	"io"
	"net"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/utils/bandwidth"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Conn is a single established connection to a remote peer. It is used
// either to download pieces from the remote (request path) or to serve
// pieces to the remote (serve path). A Conn is reusable for multiple
// requests until either side closes it or a timeout expires. Reconnect is a
// new Conn.
type Conn struct {
	config      Config
	stats       tally.Scope
	clk         clock.Clock
	bandwidth   *bandwidth.Limiter
	nc          net.Conn
	localPeerID core.PeerID
	peerID      core.PeerID
	infoHash    core.InfoHash
	numPieces   int

	// Bitfield of the remote peer as of the handshake, nil if the remote
	// never sent one.
	remoteBitfield *bitset.BitSet

	// First control frame received during handshake which was not part of
	// the handshake itself. Consumed before reading from the socket again.
	pending *controlFrame

	// Marks whether the connection was opened by the remote peer, or the
	// local peer.
	openedByRemote bool

	closed *atomic.Bool

	logger *zap.SugaredLogger
}

func newConn(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	bandwidth *bandwidth.Limiter,
	nc net.Conn,
	localPeerID core.PeerID,
	remotePeerID core.PeerID,
	infoHash core.InfoHash,
	numPieces int,
	remoteBitfield *bitset.BitSet,
	openedByRemote bool,
	logger *zap.SugaredLogger) *Conn {

	return &Conn{
		config:         config,
		stats:          stats,
		clk:            clk,
		bandwidth:      bandwidth,
		nc:             nc,
		localPeerID:    localPeerID,
		peerID:         remotePeerID,
		infoHash:       infoHash,
		numPieces:      numPieces,
		remoteBitfield: remoteBitfield,
		openedByRemote: openedByRemote,
		closed:         atomic.NewBool(false),
		logger:         logger,
	}
}

// PeerID returns the remote peer id, which is the zero value if the remote
// never identified itself.
func (c *Conn) PeerID() core.PeerID {
	return c.peerID
}

// InfoHash returns the info hash for the torrent being transmitted over
// this connection.
func (c *Conn) InfoHash() core.InfoHash {
	return c.infoHash
}

// RemoteBitfield returns the bitfield the remote peer sent during handshake,
// or nil if none was sent.
func (c *Conn) RemoteBitfield() *bitset.BitSet {
	return c.remoteBitfield
}

// RemoteHasPiece returns whether the remote peer claims to hold piece i. A
// peer which never sent a bitfield is assumed to hold every piece.
func (c *Conn) RemoteHasPiece(i int) bool {
	if c.remoteBitfield == nil {
		return true
	}
	return c.remoteBitfield.Test(uint(i))
}

func (c *Conn) String() string {
	return fmt.Sprintf("conn(peer=%s, hash=%s, opened_by_remote=%t)",
		c.peerID, c.infoHash, c.openedByRemote)
}

// Close closes the underlying connection. Idempotent.
func (c *Conn) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	c.nc.Close()
}

// IsClosed returns true if c is closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// RequestPiece requests piece i from the remote peer and accumulates its
// raw payload of exactly the given length. Returns ErrIncompletePayload if
// the remote closes before the full payload arrives.
func (c *Conn) RequestPiece(i int, length int64) ([]byte, error) {
	if c.IsClosed() {
		return nil, ErrConnClosed
	}
	if err := sendControl(c.nc, requestFrame(i), c.config.ControlTimeout); err != nil {
		return nil, fmt.Errorf("send request: %s", err)
	}
	if err := c.bandwidth.ReserveIngress(length); err != nil {
		return nil, fmt.Errorf("ingress bandwidth: %s", err)
	}
	if err := c.nc.SetReadDeadline(time.Now().Add(c.config.PayloadTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrIncompletePayload
		}
		return nil, fmt.Errorf("read payload: %s", err)
	}
	c.countPieceBandwidth("ingress", length)
	c.stats.Counter("pieces_received").Inc(1)
	return payload, nil
}

// PieceResolver resolves a requested piece index into a reader over its
// payload bytes.
type PieceResolver func(i int) (storage.PieceReader, error)

// ServeRequests serves piece requests from the remote peer until the
// connection errors, times out, or a malformed frame arrives. The activity
// callback is invoked with the piece index after each successfully served
// piece.
func (c *Conn) ServeRequests(resolve PieceResolver, activity func(i int)) error {
	defer c.Close()
	for {
		f, err := c.nextControl()
		if err != nil {
			return err
		}
		if f.op != opRequest {
			return ProtocolViolationError{f.String()}
		}
		i, err := parseRequestIndex(f)
		if err != nil {
			return err
		}
		pr, err := resolve(i)
		if err != nil {
			return fmt.Errorf("resolve piece %d: %s", i, err)
		}
		if err := c.sendPiecePayload(pr); err != nil {
			return fmt.Errorf("send piece %d: %s", i, err)
		}
		c.stats.Counter("pieces_sent").Inc(1)
		if activity != nil {
			activity(i)
		}
	}
}

// nextControl returns the pending handshake leftover frame, if any, else
// reads a new control frame from the socket.
func (c *Conn) nextControl() (controlFrame, error) {
	if c.pending != nil {
		f := *c.pending
		c.pending = nil
		return f, nil
	}
	return readControl(c.nc, c.config.ControlTimeout)
}

// sendPiecePayload streams the piece payload in bounded chunks through the
// egress bandwidth limiter.
func (c *Conn) sendPiecePayload(pr storage.PieceReader) error {
	defer pr.Close()

	length := int64(pr.Length())
	if err := c.bandwidth.ReserveEgress(length); err != nil {
		return fmt.Errorf("egress bandwidth: %s", err)
	}
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.config.PayloadTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	buf := make([]byte, c.config.UploadChunkSize)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			if _, werr := c.nc.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write payload: %s", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read piece: %s", err)
		}
	}
	c.countPieceBandwidth("egress", length)
	return nil
}

func (c *Conn) countPieceBandwidth(direction string, nbytes int64) {
	c.stats.Tagged(map[string]string{
		"piece_bandwidth_direction": direction,
	}).Counter("piece_bandwidth").Inc(nbytes)
}

func (c *Conn) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "remote_peer", c.peerID, "hash", c.infoHash)
	return c.logger.With(keysAndValues...)
}
