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

// Package trackerserver implements the HTTP announce service which
// maintains the live swarm roster.
package trackerserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"
	"github.com/dung-h/LikeTorrent-242/tracker/peerstore"
	"github.com/dung-h/LikeTorrent-242/utils/handler"

	"github.com/go-chi/chi"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Config defines Server configuration.
type Config struct {
	PeerStore peerstore.Config `yaml:"peer_store"`
}

// Server handles announce and scrape requests.
type Server struct {
	config Config
	stats  tally.Scope
	store  peerstore.Store
	logger *zap.SugaredLogger
}

// New creates a new Server.
func New(
	config Config,
	stats tally.Scope,
	store peerstore.Store,
	logger *zap.SugaredLogger) *Server {

	stats = stats.Tagged(map[string]string{
		"module": "trackerserver",
	})
	return &Server{config, stats, store, logger}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.Wrap(s.healthHandler))
	r.Get("/announce", handler.Wrap(s.announceHandler))
	r.Get("/scrape", handler.Wrap(s.scrapeHandler))
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) error {
	fmt.Fprintln(w, "OK")
	return nil
}

// announceHandler upserts the announcing peer into the roster and responds
// with all peers currently in the swarm.
func (s *Server) announceHandler(w http.ResponseWriter, r *http.Request) error {
	s.stats.Counter("announces").Inc(1)

	q := r.URL.Query()

	h, err := core.NewInfoHashFromHex(q.Get("torrent_hash"))
	if err != nil {
		return handler.Errorf("parse torrent_hash: %s", err).Status(http.StatusBadRequest)
	}
	peerID, err := core.NewPeerID(q.Get("peer_id"))
	if err != nil {
		return handler.Errorf("parse peer_id: %s", err).Status(http.StatusBadRequest)
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil {
		return handler.Errorf("parse port: %s", err).Status(http.StatusBadRequest)
	}
	ip := q.Get("ip")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	seeding := q.Get("seeding") == "true"
	event := announceclient.Event(q.Get("event"))

	if event == announceclient.Stopped {
		if err := s.store.RemovePeer(h, peerID); err != nil {
			return handler.Errorf("remove peer: %s", err)
		}
	} else {
		p := core.NewPeerInfo(peerID, ip, port, seeding)
		if err := s.store.UpdatePeer(h, p); err != nil {
			return handler.Errorf("update peer: %s", err)
		}
	}

	peers, err := s.store.GetPeers(h)
	if err != nil {
		return handler.Errorf("get peers: %s", err)
	}
	s.log("hash", h, "peer", peerID).Infof(
		"Announce event=%q, handing out %d peers", event, len(peers))

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(&announceclient.Response{Peers: peers})
}

// scrapeResponse summarizes swarm health for a torrent.
type scrapeResponse struct {
	Seeders  int `json:"seeders"`
	Leechers int `json:"leechers"`
}

func (s *Server) scrapeHandler(w http.ResponseWriter, r *http.Request) error {
	h, err := core.NewInfoHashFromHex(r.URL.Query().Get("torrent_hash"))
	if err != nil {
		return handler.Errorf("parse torrent_hash: %s", err).Status(http.StatusBadRequest)
	}
	peers, err := s.store.GetPeers(h)
	if err != nil {
		return handler.Errorf("get peers: %s", err)
	}
	var resp scrapeResponse
	for _, p := range peers {
		if p.Complete {
			resp.Seeders++
		} else {
			resp.Leechers++
		}
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(&resp)
}

func (s *Server) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	return s.logger.With(keysAndValues...)
}
