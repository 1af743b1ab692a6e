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
package uploadslot

import (
	"testing"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stateFixture(config Config, clk clock.Clock) *State {
	return New(config, clk, zap.NewNop().Sugar())
}

func TestTryAdmitRegularSlots(t *testing.T) {
	require := require.New(t)

	s := stateFixture(Config{MaxSlots: 2, DisableOptimistic: true}, clock.NewMock())

	p1 := core.PeerIDFixture()
	p2 := core.PeerIDFixture()
	p3 := core.PeerIDFixture()

	require.True(s.TryAdmit(p1))
	require.True(s.TryAdmit(p2))
	require.False(s.TryAdmit(p3))
	require.Equal(2, s.Len())

	// A peer which already holds a slot is always re-admitted.
	require.True(s.TryAdmit(p1))
}

func TestTryAdmitOptimisticWindow(t *testing.T) {
	require := require.New(t)

	// Probability 1 makes the optimistic admission deterministic.
	s := stateFixture(
		Config{MaxSlots: 2, OptimisticProb: 1.0}, clock.NewMock())

	require.True(s.TryAdmit(core.PeerIDFixture()))
	require.True(s.TryAdmit(core.PeerIDFixture()))

	// One optimistic admission beyond capacity, never more.
	require.True(s.TryAdmit(core.PeerIDFixture()))
	require.False(s.TryAdmit(core.PeerIDFixture()))
	require.Equal(3, s.Len())
}

func TestSlotCapInvariant(t *testing.T) {
	require := require.New(t)

	s := stateFixture(Config{MaxSlots: 4, OptimisticProb: 1.0}, clock.NewMock())

	for i := 0; i < 20; i++ {
		s.TryAdmit(core.PeerIDFixture())
		require.True(s.Len() <= 5)
	}
}

func TestRotateRetainsMostRecentlyActive(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	s := stateFixture(Config{MaxSlots: 3, DisableOptimistic: true}, clk)

	p1 := core.PeerIDFixture()
	p2 := core.PeerIDFixture()
	p3 := core.PeerIDFixture()

	require.True(s.TryAdmit(p1))
	require.True(s.TryAdmit(p2))
	require.True(s.TryAdmit(p3))

	clk.Add(time.Second)
	s.Touch(p2)

	freed := s.Rotate()
	require.Len(freed, 2)
	require.True(s.Holds(p2))
	require.Equal(1, s.Len())
}

func TestRotateOpensAdmissions(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	s := stateFixture(Config{MaxSlots: 2, DisableOptimistic: true}, clk)

	p1 := core.PeerIDFixture()
	p2 := core.PeerIDFixture()
	choked := core.PeerIDFixture()

	require.True(s.TryAdmit(p1))
	clk.Add(time.Second)
	require.True(s.TryAdmit(p2))
	require.False(s.TryAdmit(choked))

	// After rotation the previously choked peer can be admitted.
	s.Rotate()
	require.True(s.TryAdmit(choked))
}

func TestRelease(t *testing.T) {
	require := require.New(t)

	s := stateFixture(Config{MaxSlots: 1, DisableOptimistic: true}, clock.NewMock())

	p1 := core.PeerIDFixture()
	p2 := core.PeerIDFixture()

	require.True(s.TryAdmit(p1))
	require.False(s.TryAdmit(p2))

	s.Release(p1)
	require.True(s.TryAdmit(p2))
}
