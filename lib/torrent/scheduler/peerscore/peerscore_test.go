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
package peerscore

import (
	"testing"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
)

func TestStatsWeight(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	s := NewSet(clk)
	peer := core.PeerIDFixture()

	// A new peer has a neutral weight.
	require.Equal(1.0, s.Touch(peer).Weight())

	// 1s average latency, perfect success rate.
	s.RecordDownload(peer, time.Second, 1024, true)
	require.InDelta(1.0, s.Touch(peer).Weight(), 0.001)

	// Failures drag the success rate down.
	s.RecordDownload(peer, 0, 0, false)
	require.InDelta(0.5, s.Touch(peer).Weight(), 0.001)
}

func TestStatsWeightClampsLatency(t *testing.T) {
	require := require.New(t)

	s := NewSet(clock.NewMock())
	peer := core.PeerIDFixture()

	// Sub-100ms latency is clamped, capping the weight at rate/0.1.
	s.RecordDownload(peer, time.Millisecond, 1024, true)
	require.InDelta(10.0, s.Touch(peer).Weight(), 0.001)
}

func TestStatsWeightFloor(t *testing.T) {
	require := require.New(t)

	s := NewSet(clock.NewMock())
	peer := core.PeerIDFixture()

	// All failures: success rate 0, but the weight never drops below the
	// floor.
	for i := 0; i < 5; i++ {
		s.RecordDownload(peer, 0, 0, false)
	}
	require.Equal(0.1, s.Touch(peer).Weight())
}

func TestSetRankOrdersByWeight(t *testing.T) {
	require := require.New(t)

	s := NewSet(clock.NewMock())
	fast := core.PeerIDFixture()
	slow := core.PeerIDFixture()
	flaky := core.PeerIDFixture()

	s.RecordDownload(fast, 200*time.Millisecond, 1024, true)
	s.RecordDownload(slow, 5*time.Second, 1024, true)
	s.RecordDownload(flaky, 0, 0, false)

	ranked := s.Rank([]core.PeerID{flaky, slow, fast})
	require.Equal([]core.PeerID{fast, slow, flaky}, ranked)
}

func TestSetRankTiesPreserveInsertionOrder(t *testing.T) {
	require := require.New(t)

	s := NewSet(clock.NewMock())
	first := core.PeerIDFixture()
	second := core.PeerIDFixture()

	s.Touch(first)
	s.Touch(second)

	ranked := s.Rank([]core.PeerID{second, first})
	require.Equal([]core.PeerID{first, second}, ranked)
}

func TestSetSnapshotCounters(t *testing.T) {
	require := require.New(t)

	s := NewSet(clock.NewMock())
	peer := core.PeerIDFixture()

	s.RecordDownload(peer, time.Second, 2048, true)
	s.RecordUpload(peer, 512)

	snap, ok := s.Snapshot(peer)
	require.True(ok)
	require.Equal(1, snap.Successes)
	require.Equal(int64(1), snap.PiecesDown)
	require.Equal(int64(2048), snap.BytesDown)
	require.Equal(int64(1), snap.PiecesUp)
	require.Equal(int64(512), snap.BytesUp)

	_, ok = s.Snapshot(core.PeerIDFixture())
	require.False(ok)
}

func TestSetPruneIdle(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	s := NewSet(clk)

	stale := core.PeerIDFixture()
	s.Touch(stale)

	clk.Add(time.Minute)
	active := core.PeerIDFixture()
	s.RecordDownload(active, time.Second, 1024, true)

	removed := s.PruneIdle(30 * time.Second)
	require.Equal(1, removed)
	require.Equal(1, s.Len())

	_, ok := s.Snapshot(active)
	require.True(ok)
	_, ok = s.Snapshot(stale)
	require.False(ok)
}
