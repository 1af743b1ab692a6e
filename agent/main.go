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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dung-h/LikeTorrent-242/agent/agentserver"
	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/networkevent"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/scheduler"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage"
	"github.com/dung-h/LikeTorrent-242/metrics"
	"github.com/dung-h/LikeTorrent-242/tracker/announceclient"
	"github.com/dung-h/LikeTorrent-242/utils/configutil"
	"github.com/dung-h/LikeTorrent-242/utils/log"
	"github.com/dung-h/LikeTorrent-242/utils/netutil"
)

// numPortRetries is the size of the consecutive port range probed for a
// free listening port.
const numPortRetries = 10

func defaultBasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads", "liketorrent")
}

func main() {
	basePath := flag.String("base_path", defaultBasePath(), "directory for downloaded files")
	download := flag.Bool("download", false, "start downloading; otherwise seed existing files")
	noSeed := flag.Bool("no-seed", false, "exit after download completes instead of seeding")
	port := flag.Int("port", 6881, "base of the listening port range")
	statusPort := flag.Int("status-port", 0, "port for the HTTP status server, 0 disables")
	configFile := flag.String("config", "", "configuration file path")
	zone := flag.String("zone", "", "zone name reported with metrics")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <metainfo file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	var config Config
	if *configFile != "" {
		if err := configutil.Load(*configFile, &config); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %s\n", err)
			os.Exit(1)
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

	go metrics.EmitVersion(stats)

	mi, err := core.NewMetaInfoFromFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to load metainfo: %s", err)
	}
	log.Infof("Loaded %s", mi)

	listener, boundPort, err := netutil.Listen("", *port, numPortRetries)
	if err != nil {
		log.Fatalf("Failed to bind listening port: %s", err)
	}

	ip, err := netutil.GetLocalIP()
	if err != nil {
		log.Warnf("Could not detect local IP, announcing loopback: %s", err)
		ip = "127.0.0.1"
	}

	pctx, err := core.NewPeerContext(core.RandomPeerIDFactory, *zone, ip, boundPort)
	if err != nil {
		log.Fatalf("Failed to create peer context: %s", err)
	}

	torrent, err := storage.NewFileTorrent(*basePath, mi)
	if err != nil {
		log.Fatalf("Failed to open torrent storage: %s", err)
	}
	log.Infof("Resume scan: %d of %d pieces on disk",
		torrent.NumPieces()-len(torrent.MissingPieces()), torrent.NumPieces())

	netevents, err := networkevent.NewProducer(config.NetworkEvent)
	if err != nil {
		log.Fatalf("Failed to create network event producer: %s", err)
	}
	defer netevents.Close()

	client := announceclient.New(config.AnnounceClient, pctx, mi.Announce)

	sched := scheduler.New(
		config.Scheduler, stats, pctx, torrent, client, netevents, listener, zlog)
	sched.Start()

	if *statusPort != 0 {
		srv := agentserver.New(stats, sched)
		addr := fmt.Sprintf(":%d", *statusPort)
		log.Infof("Starting status server on %s", addr)
		go func() {
			log.Fatal(http.ListenAndServe(addr, srv.Handler()))
		}()
	}

	if *download {
		if err := sched.Download(); err != nil {
			sched.Stop()
			log.Fatalf("Download failed: %s", err)
		}
	} else {
		if !torrent.Complete() {
			log.Warnf("Torrent incomplete (%d missing pieces), serving available pieces only",
				len(torrent.MissingPieces()))
		}
		sched.Seed()
	}

	if *noSeed {
		sched.Stop()
		return
	}

	log.Infof("Seeding %s", mi.Name())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	log.Info("Shutting down")
	sched.Stop()
}
