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
package main

import (
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler"
	"github.com/dung-h/LikeTorrent-242/metrics"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"

	"go.uber.org/zap"
)

// Config defines agent configuration.
type Config struct {
	ZapLogging     zap.Config            `yaml:"zap"`
	Metrics        metrics.Config        `yaml:"metrics"`
	Scheduler      scheduler.Config      `yaml:"scheduler"`
	AnnounceClient announceclient.Config `yaml:"announce_client"`
	NetworkEvent   networkevent.Config   `yaml:"network_event"`
}
