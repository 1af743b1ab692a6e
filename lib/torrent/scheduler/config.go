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
	"time"

	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/announcer"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/conn"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler/uploadslot"
)

// Config defines Scheduler configuration.
type Config struct {

	// MaxWorkers bounds the number of concurrent download workers.
	MaxWorkers int `yaml:"max_workers"`

	// MaxRetriesPerPiece bounds how many peers are tried for a piece within
	// a single attempt cycle before the piece is re-enqueued.
	MaxRetriesPerPiece int `yaml:"max_retries_per_piece"`

	// ExplorationProb is the probability a worker picks a random candidate
	// from the top of the ranking instead of the best one.
	ExplorationProb float64 `yaml:"exploration_prob"`

	// RequeueDelay is how long a worker sleeps after exhausting every
	// candidate for a piece.
	RequeueDelay time.Duration `yaml:"requeue_delay"`

	// IdlePollInterval is how often an idle worker rechecks the queue.
	IdlePollInterval time.Duration `yaml:"idle_poll_interval"`

	// AcceptTimeout bounds a single blocking accept so the loop can recheck
	// the running flag.
	AcceptTimeout time.Duration `yaml:"accept_timeout"`

	// PeerTTL is how long an inactive peer survives in the stats set.
	PeerTTL time.Duration `yaml:"peer_ttl"`

	// PeerCleanupInterval is the period of the stats cleanup sweep.
	PeerCleanupInterval time.Duration `yaml:"peer_cleanup_interval"`

	Conn       conn.Config       `yaml:"conn"`
	Announcer  announcer.Config  `yaml:"announcer"`
	UploadSlot uploadslot.Config `yaml:"upload_slot"`
}

func (c Config) applyDefaults() Config {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 3
	}
	if c.MaxRetriesPerPiece == 0 {
		c.MaxRetriesPerPiece = 3
	}
	if c.ExplorationProb == 0 {
		c.ExplorationProb = 0.3
	}
	if c.RequeueDelay == 0 {
		c.RequeueDelay = time.Second
	}
	if c.IdlePollInterval == 0 {
		c.IdlePollInterval = 250 * time.Millisecond
	}
	if c.AcceptTimeout == 0 {
		c.AcceptTimeout = time.Second
	}
	if c.PeerTTL == 0 {
		c.PeerTTL = 5 * time.Minute
	}
	if c.PeerCleanupInterval == 0 {
		c.PeerCleanupInterval = time.Minute
	}
	return c
}
