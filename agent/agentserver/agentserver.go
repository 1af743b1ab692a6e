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

// Package agentserver exposes a small HTTP surface for inspecting a running
// agent.
package agentserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler"
	"github.com/dung-h/LikeTorrent-242/utils/handler"

	"github.com/go-chi/chi"
	"github.com/uber-go/tally"
)

// Server exposes agent status over HTTP.
type Server struct {
	stats tally.Scope
	sched *scheduler.Scheduler
}

// New creates a new Server.
func New(stats tally.Scope, sched *scheduler.Scheduler) *Server {
	stats = stats.Tagged(map[string]string{
		"module": "agentserver",
	})
	return &Server{stats, sched}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.Wrap(s.healthHandler))
	r.Get("/status", handler.Wrap(s.statusHandler))
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) error {
	fmt.Fprintln(w, "OK")
	return nil
}

// status summarizes the state of the running transfer.
type status struct {
	Name              string `json:"name"`
	InfoHash          string `json:"info_hash"`
	State             string `json:"state"`
	PercentDownloaded int    `json:"percent_downloaded"`
	MissingPieces     int    `json:"missing_pieces"`
	NumPieces         int    `json:"num_pieces"`
	NumPeers          int    `json:"num_peers"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) error {
	t := s.sched.Torrent()
	info := t.Stat()
	resp := status{
		Name:              t.Name(),
		InfoHash:          t.InfoHash().Hex(),
		State:             s.sched.State().String(),
		PercentDownloaded: info.PercentDownloaded(),
		MissingPieces:     len(t.MissingPieces()),
		NumPieces:         t.NumPieces(),
		NumPeers:          s.sched.NumPeers(),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(&resp)
}
