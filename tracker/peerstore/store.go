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

// Package peerstore provides storage for announcing peers.
package peerstore

import (
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
)

// Store provides storage for announcing peers.
type Store interface {

	// UpdatePeer writes p under the torrent identified by h, refreshing its
	// last-seen time.
	UpdatePeer(h core.InfoHash, p *core.PeerInfo) error

	// RemovePeer deletes the peer identified by peerID under h.
	RemovePeer(h core.InfoHash, peerID core.PeerID) error

	// GetPeers returns all peers currently announcing for h, excluding
	// peers which have not been seen within the store's TTL.
	GetPeers(h core.InfoHash) ([]*core.PeerInfo, error)

	// Close frees any underlying resources.
	Close() error
}

// Config defines Store configuration.
type Config struct {

	// TTL after which a peer which has not re-announced is excluded from
	// handouts.
	TTL time.Duration `yaml:"ttl"`

	// SQLite database path. Empty selects the in-memory store.
	SQLitePath string `yaml:"sqlite_path"`
}

func (c Config) applyDefaults() Config {
	if c.TTL == 0 {
		c.TTL = 2 * time.Minute
	}
	return c
}

// New creates the Store configured by config: SQLite-backed when a database
// path is set, in-memory otherwise.
func New(config Config) (Store, error) {
	config = config.applyDefaults()
	if config.SQLitePath != "" {
		return NewSQLStore(config)
	}
	return NewMemStore(config), nil
}
