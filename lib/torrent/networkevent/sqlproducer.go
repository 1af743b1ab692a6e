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
package networkevent

import (
	"encoding/json"
	"fmt"

	"github.com/dung-h/LikeTorrent-242/utils/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQL driver.
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
	id      TEXT PRIMARY KEY,
	event   TEXT    NOT NULL,
	torrent TEXT    NOT NULL,
	self    TEXT    NOT NULL,
	ts      INTEGER NOT NULL,
	peer    TEXT,
	piece   INTEGER,
	payload TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_torrent ON events (torrent, ts);
`

// sqlProducer writes events to a local SQLite database for offline swarm
// analysis.
type sqlProducer struct {
	db *sqlx.DB
}

// newSQLProducer creates a new sqlProducer, initializing the schema if
// needed.
func newSQLProducer(path string) (*sqlProducer, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %s", err)
	}
	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %s", err)
	}
	return &sqlProducer{db}, nil
}

// Produce records a network event. Write errors are logged; the observer is
// never allowed to fail the transfer path.
func (p *sqlProducer) Produce(e *Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Error serializing network event to json: %s", err)
		return
	}
	if _, err := p.db.Exec(`
		INSERT OR REPLACE INTO events (id, event, torrent, self, ts, peer, piece, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Name), e.Torrent, e.Self, e.Time.UnixNano(),
		e.Peer, e.Piece, string(payload)); err != nil {
		log.Errorf("Error writing network event: %s", err)
	}
}

// Close closes the database.
func (p *sqlProducer) Close() error {
	return p.db.Close()
}
