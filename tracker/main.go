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
	"flag"
	"fmt"
	"net/http"

	"github.com/dung-h/LikeTorrent-242/metrics"
	"github.com/dung-h/LikeTorrent-242/tracker/peerstore"
	"github.com/dung-h/LikeTorrent-242/tracker/trackerserver"
	"github.com/dung-h/LikeTorrent-242/utils/configutil"
	"github.com/dung-h/LikeTorrent-242/utils/log"

	"go.uber.org/zap"
)

// Config defines tracker configuration.
type Config struct {
	ZapLogging    zap.Config           `yaml:"zap"`
	Metrics       metrics.Config       `yaml:"metrics"`
	TrackerServer trackerserver.Config `yaml:"trackerserver"`
	PeerStore     peerstore.Config     `yaml:"peer_store"`
}

func main() {
	port := flag.Int("port", 26232, "port which tracker listens on")
	configFile := flag.String("config", "", "configuration file path")
	zone := flag.String("zone", "", "zone name reported with metrics")
	flag.Parse()

	var config Config
	if *configFile != "" {
		if err := configutil.Load(*configFile, &config); err != nil {
			panic(err)
		}
	}
	if config.ZapLogging.Encoding == "" {
		config.ZapLogging = log.Default()
	}
	zlog := log.ConfigureLogger(config.ZapLogging)
	defer zlog.Sync()

	stats, closer, err := metrics.New(config.Metrics, *zone)
	if err != nil {
		log.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	store, err := peerstore.New(config.PeerStore)
	if err != nil {
		log.Fatalf("Failed to create peer store: %s", err)
	}
	defer store.Close()

	server := trackerserver.New(config.TrackerServer, stats, store, zlog)
	addr := fmt.Sprintf(":%d", *port)
	log.Infof("Starting tracker on %s", addr)
	log.Fatal(http.ListenAndServe(addr, server.Handler()))
}
