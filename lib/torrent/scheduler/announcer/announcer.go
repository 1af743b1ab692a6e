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
package announcer

import (
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
)

// Config defines Announcer configuration.
type Config struct {
	Interval time.Duration `yaml:"interval"`
}

func (c Config) applyDefaults() Config {
	if c.Interval == 0 {
		c.Interval = 20 * time.Second
	}
	return c
}

// Events defines Announcer events.
type Events interface {
	AnnounceTick()
}

// Announcer is a thin wrapper around an announceclient.Client which drives
// the periodic announce loop. Announce failures are logged and non-fatal;
// the previous peer roster simply stays in effect until the next tick.
type Announcer struct {
	config Config
	client announceclient.Client
	events Events
	timer  *clock.Timer
	logger *zap.SugaredLogger
}

// New creates a new Announcer.
func New(
	config Config,
	client announceclient.Client,
	events Events,
	clk clock.Clock,
	logger *zap.SugaredLogger) *Announcer {

	config = config.applyDefaults()
	return &Announcer{
		config: config,
		client: client,
		events: events,
		timer:  clk.Timer(config.Interval),
		logger: logger,
	}
}

// Default creates a default Announcer.
func Default(
	client announceclient.Client,
	events Events,
	clk clock.Clock,
	logger *zap.SugaredLogger) *Announcer {

	return New(Config{}, client, events, clk, logger)
}

// Announce announces through the underlying client and returns the
// resulting peer roster.
func (a *Announcer) Announce(
	h core.InfoHash,
	downloaded int64,
	seeding bool,
	event announceclient.Event) ([]*core.PeerInfo, error) {

	peers, err := a.client.Announce(h, downloaded, seeding, event)
	if err != nil {
		return nil, err
	}
	return peers, nil
}

// Ticker emits AnnounceTick events at the announce interval. Exits when
// done is closed.
func (a *Announcer) Ticker(done <-chan struct{}) {
	for {
		select {
		case <-a.timer.C:
			a.events.AnnounceTick()
			a.timer.Reset(a.config.Interval)
		case <-done:
			return
		}
	}
}
