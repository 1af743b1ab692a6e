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
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/conn"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/uploadslot"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"
	"github.com/dung-h/LikeTorrent-242/tracker/peerstore"
	"github.com/dung-h/LikeTorrent-242/tracker/trackerserver"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/zap"
)

func trackerFixture(t *testing.T) *httptest.Server {
	t.Helper()

	srv := trackerserver.New(
		trackerserver.Config{},
		tally.NoopScope,
		peerstore.NewMemStore(peerstore.Config{}),
		zap.NewNop().Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// writeContent lays the full content stream out under dir so a FileTorrent
// built over it resumes as a seeder.
func writeContent(t *testing.T, dir string, blob *core.BlobFixture) {
	t.Helper()

	for _, f := range blob.MetaInfo.Files() {
		p := filepath.Join(dir, f.RelativePath)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(
			p, blob.Content[f.Offset:f.Offset+f.Length], 0644))
	}
}

// readContent reassembles the content stream from dir.
func readContent(t *testing.T, dir string, blob *core.BlobFixture) []byte {
	t.Helper()

	var content []byte
	for _, f := range blob.MetaInfo.Files() {
		b, err := os.ReadFile(filepath.Join(dir, f.RelativePath))
		require.NoError(t, err)
		content = append(content, b...)
	}
	return content
}

type testPeer struct {
	sched *Scheduler
	dir   string
}

func newTestPeer(
	t *testing.T,
	blob *core.BlobFixture,
	trackerURL string,
	seed bool,
	config Config) *testPeer {
	t.Helper()

	prepare := func(string) {}
	if seed {
		prepare = func(dir string) { writeContent(t, dir, blob) }
	}
	return newTestPeerWithPrepare(t, blob, trackerURL, config, prepare)
}

// newTestPeerWithPrepare builds a peer whose base directory is seeded by
// prepare before the engine starts.
func newTestPeerWithPrepare(
	t *testing.T,
	blob *core.BlobFixture,
	trackerURL string,
	config Config,
	prepare func(dir string)) *testPeer {
	t.Helper()

	dir := t.TempDir()
	prepare(dir)
	ft, err := storage.NewFileTorrent(dir, blob.MetaInfo)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port

	pctx, err := core.NewPeerContext(core.RandomPeerIDFactory, "test", "127.0.0.1", port)
	require.NoError(t, err)

	client := announceclient.New(announceclient.Config{
		RetryInterval:     time.Millisecond,
		AllowedPortRanges: []announceclient.PortRange{{Low: 1, High: 65535}},
	}, pctx, trackerURL)

	sched := New(
		config,
		tally.NoopScope,
		pctx,
		ft,
		client,
		networkevent.NewTestProducer(),
		l,
		zap.NewNop().Sugar())
	sched.Start()
	t.Cleanup(sched.Stop)

	return &testPeer{sched, dir}
}

func TestSeederLeecherTransfer(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(3072, 1024)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{})
	require.NoError(seeder.sched.Download())
	require.Equal(Seeding, seeder.sched.State())

	leecher := newTestPeer(t, blob, ts.URL, false, Config{})
	require.Equal(Stopped, leecher.sched.State())
	require.NoError(leecher.sched.Download())

	require.Equal(Seeding, leecher.sched.State())
	require.True(leecher.sched.Torrent().Complete())
	require.Equal(blob.Content, readContent(t, leecher.dir, blob))
}

func TestMultiFileTransferWithShortLastPiece(t *testing.T) {
	require := require.New(t)

	blob := core.MultiFileBlobFixture([]uint64{1000, 1000, 560}, 1024)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{})
	require.NoError(seeder.sched.Download())

	leecher := newTestPeer(t, blob, ts.URL, false, Config{})
	require.NoError(leecher.sched.Download())

	require.Equal(blob.Content, readContent(t, leecher.dir, blob))
}

func TestLeecherResumesFromPartialState(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(4096, 1024)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{})
	require.NoError(seeder.sched.Download())

	// Pre-seed piece 0 on disk before the engine starts; only the remaining
	// pieces are requested.
	leecher := newTestPeerWithPrepare(t, blob, ts.URL, Config{}, func(dir string) {
		f := blob.MetaInfo.Files()[0]
		partial := make([]byte, f.Length)
		copy(partial, blob.Content[:blob.MetaInfo.PieceLength()])
		require.NoError(os.WriteFile(
			filepath.Join(dir, f.RelativePath), partial, 0644))
	})

	require.Equal([]int{1, 2, 3}, leecher.sched.Torrent().MissingPieces())

	require.NoError(leecher.sched.Download())
	require.Equal(blob.Content, readContent(t, leecher.dir, blob))
}

func TestLeechersPropagateFromSingleSeeder(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(8192, 512)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{})
	require.NoError(seeder.sched.Download())

	first := newTestPeer(t, blob, ts.URL, false, Config{MaxWorkers: 4})
	require.NoError(first.sched.Download())
	require.Equal(blob.Content, readContent(t, first.dir, blob))

	// A second leecher now has two complete peers to pull from.
	second := newTestPeer(t, blob, ts.URL, false, Config{MaxWorkers: 4})
	require.NoError(second.sched.Download())
	require.Equal(blob.Content, readContent(t, second.dir, blob))
}

func TestUploadChokesBeyondSlotCapacity(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(1024, 1024)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{
		UploadSlot: uploadslot.Config{MaxSlots: 1, DisableOptimistic: true},
	})
	require.NoError(seeder.sched.Download())
	addr := seeder.sched.listener.Addr().String()

	info := storage.NewTorrentInfo(
		blob.MetaInfo, bitset.New(uint(blob.MetaInfo.NumPieces())))

	first := conn.HandshakerFixture(conn.ConfigFixture())
	r1, err := first.Initialize(addr, info)
	require.NoError(err)
	defer r1.Conn.Close()

	second := conn.HandshakerFixture(conn.ConfigFixture())
	_, err = second.Initialize(addr, info)
	require.Equal(conn.ErrChoked, err)
}

func TestStopAnnouncesDeparture(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(1024, 1024)
	ts := trackerFixture(t)

	seeder := newTestPeer(t, blob, ts.URL, true, Config{})
	require.NoError(seeder.sched.Download())

	leecher := newTestPeer(t, blob, ts.URL, false, Config{})
	require.NoError(leecher.sched.Download())

	leecher.sched.Stop()
	require.Equal(Stopped, leecher.sched.State())

	// Stopping twice is a no-op.
	leecher.sched.Stop()
}
