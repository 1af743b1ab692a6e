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
	"crypto/sha1"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage/piecereader"

	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"
)

// testPeerPair joins an initiator and acceptor handshaker over a loopback
// listener.
type testPeerPair struct {
	initiator *Handshaker
	acceptor  *Handshaker
	listener  net.Listener
}

func newTestPeerPair(t *testing.T) *testPeerPair {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return &testPeerPair{
		initiator: HandshakerFixture(ConfigFixture()),
		acceptor:  HandshakerFixture(ConfigFixture()),
		listener:  l,
	}
}

// torrentInfoFixture builds a TorrentInfo whose bitfield has the given
// pieces set.
func torrentInfoFixture(
	t *testing.T, blob *core.BlobFixture, have ...uint) *storage.TorrentInfo {
	t.Helper()

	b := bitset.New(uint(blob.MetaInfo.NumPieces()))
	for _, i := range have {
		b.Set(i)
	}
	return storage.NewTorrentInfo(blob.MetaInfo, b)
}

// accept runs the acceptor side of a handshake, admitting the connection.
func (p *testPeerPair) accept(
	t *testing.T, info *storage.TorrentInfo, wg *sync.WaitGroup, out chan<- *Conn) {
	t.Helper()

	wg.Add(1)
	go func() {
		defer wg.Done()
		nc, err := p.listener.Accept()
		require.NoError(t, err)
		pc, err := p.acceptor.Accept(nc)
		require.NoError(t, err)
		c, err := p.acceptor.Establish(pc, info)
		require.NoError(t, err)
		out <- c
	}()
}

func TestHandshakeEstablishExchangesBitfields(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(400, 100)
	pair := newTestPeerPair(t)

	leecherInfo := torrentInfoFixture(t, blob)
	seederInfo := torrentInfoFixture(t, blob, 0, 1, 2, 3)

	var wg sync.WaitGroup
	serverConns := make(chan *Conn, 1)
	pair.accept(t, seederInfo, &wg, serverConns)

	r, err := pair.initiator.Initialize(pair.listener.Addr().String(), leecherInfo)
	require.NoError(err)
	defer r.Conn.Close()

	// The initiator learned the seeder holds every piece.
	require.NotNil(r.RemoteBitfield)
	require.Equal(uint(4), r.RemoteBitfield.Count())
	for i := 0; i < 4; i++ {
		require.True(r.Conn.RemoteHasPiece(i))
	}

	wg.Wait()
	sc := <-serverConns
	defer sc.Close()

	// The acceptor learned the leecher holds nothing and its peer id.
	require.NotNil(sc.RemoteBitfield())
	require.Equal(uint(0), sc.RemoteBitfield().Count())
	require.Equal(pair.initiator.peerID, sc.PeerID())
}

func TestHandshakeChoke(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(400, 100)
	pair := newTestPeerPair(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		nc, err := pair.listener.Accept()
		require.NoError(err)
		pc, err := pair.acceptor.Accept(nc)
		require.NoError(err)
		pair.acceptor.Choke(pc)
	}()

	_, err := pair.initiator.Initialize(
		pair.listener.Addr().String(), torrentInfoFixture(t, blob))
	require.Equal(ErrChoked, err)
	wg.Wait()
}

func TestRequestServePiece(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(2560, 1024)
	pair := newTestPeerPair(t)

	var wg sync.WaitGroup
	serverConns := make(chan *Conn, 1)
	pair.accept(t, torrentInfoFixture(t, blob, 0, 1, 2), &wg, serverConns)

	r, err := pair.initiator.Initialize(
		pair.listener.Addr().String(), torrentInfoFixture(t, blob))
	require.NoError(err)
	defer r.Conn.Close()

	wg.Wait()
	sc := <-serverConns

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		sc.ServeRequests(func(i int) (storage.PieceReader, error) {
			start := int64(i) * blob.MetaInfo.PieceLength()
			end := start + blob.MetaInfo.GetPieceLength(i)
			return piecereader.NewBuffer(blob.Content[start:end]), nil
		}, nil)
	}()

	// The connection is reusable for multiple requests, including the short
	// last piece.
	for i := 0; i < 3; i++ {
		expected := blob.MetaInfo.GetPieceLength(i)
		data, err := r.Conn.RequestPiece(i, expected)
		require.NoError(err)
		require.Len(data, int(expected))

		sum := sha1.Sum(data)
		expectedHash, err := blob.MetaInfo.PieceHash(i)
		require.NoError(err)
		require.Equal(expectedHash, sum[:])
	}

	r.Conn.Close()
	select {
	case <-serveDone:
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after close")
	}
}

func TestRequestPieceIncompletePayload(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(1024, 1024)
	pair := newTestPeerPair(t)

	var wg sync.WaitGroup
	serverConns := make(chan *Conn, 1)
	pair.accept(t, torrentInfoFixture(t, blob, 0), &wg, serverConns)

	r, err := pair.initiator.Initialize(
		pair.listener.Addr().String(), torrentInfoFixture(t, blob))
	require.NoError(err)
	defer r.Conn.Close()

	wg.Wait()
	sc := <-serverConns

	// Serve a truncated payload, then close the connection.
	go sc.ServeRequests(func(i int) (storage.PieceReader, error) {
		return piecereader.NewBuffer(blob.Content[:100]), nil
	}, func(int) { sc.Close() })

	_, err = r.Conn.RequestPiece(0, 1024)
	require.Equal(ErrIncompletePayload, err)
}

func TestAcceptRejectsMalformedHandshake(t *testing.T) {
	require := require.New(t)

	pair := newTestPeerPair(t)

	errs := make(chan error, 1)
	go func() {
		nc, err := pair.listener.Accept()
		require.NoError(err)
		_, err = pair.acceptor.Accept(nc)
		errs <- err
	}()

	nc, err := net.Dial("tcp", pair.listener.Addr().String())
	require.NoError(err)
	defer nc.Close()
	_, err = nc.Write([]byte("GET / HTTP/1.1"))
	require.NoError(err)

	require.True(IsProtocolViolationError(<-errs))
}
