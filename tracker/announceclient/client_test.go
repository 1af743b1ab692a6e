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
package announceclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func configFixture() Config {
	return Config{
		Timeout:       time.Second,
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
	}.applyDefaults()
}

func TestAnnounceSendsQueryAndParsesPeers(t *testing.T) {
	require := require.New(t)

	pctx := core.PeerContextFixture()
	h := core.InfoHashFixture()

	remote := core.PeerInfoFixture()
	remote.Port = 6881

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal("/announce", r.URL.Path)
			q := r.URL.Query()
			require.Equal(h.Hex(), q.Get("torrent_hash"))
			require.Equal(pctx.PeerID.String(), q.Get("peer_id"))
			require.Equal("1024", q.Get("downloaded"))
			require.Equal("started", q.Get("event"))
			require.Equal("false", q.Get("seeding"))
			json.NewEncoder(w).Encode(&Response{Peers: []*core.PeerInfo{remote}})
		}))
	defer server.Close()

	client := New(configFixture(), pctx, server.URL)
	peers, err := client.Announce(h, 1024, false, Started)
	require.NoError(err)
	require.Len(peers, 1)
	require.Equal(remote.PeerID, peers[0].PeerID)
}

func TestAnnounceFiltersPeers(t *testing.T) {
	require := require.New(t)

	pctx := core.PeerContextFixture()

	self := core.PeerInfoFromContext(pctx, false)
	self.Port = 6881

	valid := core.PeerInfoFixture()
	valid.Port = 49152

	dup := *valid

	badPort := core.PeerInfoFixture()
	badPort.Port = 80

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(&Response{
				Peers: []*core.PeerInfo{self, valid, &dup, badPort},
			})
		}))
	defer server.Close()

	client := New(configFixture(), pctx, server.URL)
	peers, err := client.Announce(core.InfoHashFixture(), 0, false, None)
	require.NoError(err)
	require.Len(peers, 1)
	require.Equal(valid.PeerID, peers[0].PeerID)
}

func TestAnnounceRetriesServerErrors(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Inc() < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(&Response{})
		}))
	defer server.Close()

	client := New(configFixture(), core.PeerContextFixture(), server.URL)
	peers, err := client.Announce(core.InfoHashFixture(), 0, true, None)
	require.NoError(err)
	require.Empty(peers)
	require.Equal(int32(3), calls.Load())
}

func TestAnnounceErrorsAfterRetryBudget(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Inc()
			w.WriteHeader(http.StatusInternalServerError)
		}))
	defer server.Close()

	client := New(configFixture(), core.PeerContextFixture(), server.URL)
	_, err := client.Announce(core.InfoHashFixture(), 0, true, None)
	require.Error(err)
	require.Equal(int32(3), calls.Load())
}

func TestAnnounceUnreachableTracker(t *testing.T) {
	require := require.New(t)

	client := New(configFixture(), core.PeerContextFixture(), "http://127.0.0.1:1")
	_, err := client.Announce(core.InfoHashFixture(), 0, false, None)
	require.Error(err)
}

func TestDisabledClient(t *testing.T) {
	require := require.New(t)

	_, err := Disabled().Announce(core.InfoHashFixture(), 0, false, None)
	require.Equal(ErrDisabled, err)
}
