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
package peerstore

import (
	"fmt"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQL driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS torrents (
	torrent_hash TEXT PRIMARY KEY,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS peers (
	peer_id      TEXT    NOT NULL,
	torrent_hash TEXT    NOT NULL,
	ip           TEXT    NOT NULL,
	port         INTEGER NOT NULL,
	complete     INTEGER NOT NULL DEFAULT 0,
	last_seen    INTEGER NOT NULL,
	PRIMARY KEY (peer_id, torrent_hash),
	FOREIGN KEY (torrent_hash) REFERENCES torrents(torrent_hash)
);
`

type peerRow struct {
	PeerID   string `db:"peer_id"`
	IP       string `db:"ip"`
	Port     int    `db:"port"`
	Complete bool   `db:"complete"`
	LastSeen int64  `db:"last_seen"`
}

// SQLStore is a SQLite-backed Store. Peer state survives tracker restarts.
type SQLStore struct {
	config Config
	db     *sqlx.DB
}

// NewSQLStore creates a new SQLStore, initializing the schema if needed.
func NewSQLStore(config Config) (*SQLStore, error) {
	config = config.applyDefaults()
	db, err := sqlx.Open("sqlite3", config.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %s", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %s", err)
	}
	return &SQLStore{config, db}, nil
}

// UpdatePeer upserts p under h.
func (s *SQLStore) UpdatePeer(h core.InfoHash, p *core.PeerInfo) error {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO torrents (torrent_hash) VALUES (?)`, h.Hex()); err != nil {
		return fmt.Errorf("insert torrent: %s", err)
	}
	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO peers (peer_id, torrent_hash, ip, port, complete, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.PeerID.String(), h.Hex(), p.IP, p.Port, p.Complete, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert peer: %s", err)
	}
	return nil
}

// RemovePeer deletes the peer identified by peerID under h.
func (s *SQLStore) RemovePeer(h core.InfoHash, peerID core.PeerID) error {
	if _, err := s.db.Exec(
		`DELETE FROM peers WHERE peer_id = ? AND torrent_hash = ?`,
		peerID.String(), h.Hex()); err != nil {
		return fmt.Errorf("delete peer: %s", err)
	}
	return nil
}

// GetPeers returns all peers announcing for h which have been seen within
// the TTL.
func (s *SQLStore) GetPeers(h core.InfoHash) ([]*core.PeerInfo, error) {
	cutoff := time.Now().Add(-s.config.TTL).Unix()
	var rows []peerRow
	if err := s.db.Select(&rows, `
		SELECT peer_id, ip, port, complete, last_seen
		FROM peers WHERE torrent_hash = ? AND last_seen >= ?`,
		h.Hex(), cutoff); err != nil {
		return nil, fmt.Errorf("select peers: %s", err)
	}
	result := make([]*core.PeerInfo, 0, len(rows))
	for _, r := range rows {
		peerID, err := core.NewPeerID(r.PeerID)
		if err != nil {
			return nil, fmt.Errorf("parse stored peer id: %s", err)
		}
		result = append(result, core.NewPeerInfo(peerID, r.IP, r.Port, r.Complete))
	}
	return result, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
