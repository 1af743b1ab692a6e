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
package announceclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/utils/httputil"

	"github.com/cenkalti/backoff"
)

// ErrDisabled is returned when announce is disabled.
var ErrDisabled = errors.New("announcing disabled")

// Event is the optional event parameter of an announce.
type Event string

// Announce events.
const (
	None      Event = ""
	Started   Event = "started"
	Completed Event = "completed"
	Stopped   Event = "stopped"
)

// PortRange is an inclusive range of acceptable peer ports.
type PortRange struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

func (r PortRange) contains(port int) bool {
	return port >= r.Low && port <= r.High
}

// Config defines Client configuration.
type Config struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	// AllowedPortRanges filters out peers announcing from unexpected ports,
	// a safety measure against misreporting trackers.
	AllowedPortRanges []PortRange `yaml:"allowed_port_ranges"`
}

func (c Config) applyDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 10 * time.Second
	}
	if len(c.AllowedPortRanges) == 0 {
		c.AllowedPortRanges = []PortRange{
			{Low: 6881, High: 6890},
			{Low: 49152, High: 65535},
		}
	}
	return c
}

// Response defines an announce response.
type Response struct {
	Peers []*core.PeerInfo `json:"peers"`
}

// Client defines a client for announcing and fetching the peer roster.
type Client interface {
	Announce(h core.InfoHash, downloaded int64, seeding bool, event Event) ([]*core.PeerInfo, error)
}

type client struct {
	config   Config
	pctx     core.PeerContext
	announce string
}

// New creates a new Client which announces to the given announce URL.
func New(config Config, pctx core.PeerContext, announce string) Client {
	return &client{config.applyDefaults(), pctx, strings.TrimSuffix(announce, "/")}
}

// Announce announces the torrent identified by h along with local transfer
// state, and returns the filtered peer roster.
func (c *client) Announce(
	h core.InfoHash, downloaded int64, seeding bool, event Event) ([]*core.PeerInfo, error) {

	v := url.Values{}
	v.Set("torrent_hash", h.Hex())
	v.Set("peer_id", c.pctx.PeerID.String())
	v.Set("ip", c.pctx.IP)
	v.Set("port", strconv.Itoa(c.pctx.Port))
	v.Set("downloaded", strconv.FormatInt(downloaded, 10))
	v.Set("event", string(event))
	v.Set("seeding", strconv.FormatBool(seeding))

	resp, err := httputil.Get(
		fmt.Sprintf("%s/announce?%s", c.announce, v.Encode()),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendRetry(
			httputil.RetryMax(c.config.MaxRetries),
			httputil.RetryBackoff(&backoff.ConstantBackOff{
				Interval: c.config.RetryInterval,
			})))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var r Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %s", err)
	}
	return c.filter(r.Peers), nil
}

// filter drops self, duplicates, and peers on disallowed ports.
func (c *client) filter(peers []*core.PeerInfo) []*core.PeerInfo {
	var result []*core.PeerInfo
	seen := make(map[core.PeerID]bool)
	for _, p := range peers {
		if p.PeerID == c.pctx.PeerID {
			continue
		}
		if seen[p.PeerID] {
			continue
		}
		if !c.portAllowed(p.Port) {
			continue
		}
		seen[p.PeerID] = true
		result = append(result, p)
	}
	return result
}

func (c *client) portAllowed(port int) bool {
	for _, r := range c.config.AllowedPortRanges {
		if r.contains(port) {
			return true
		}
	}
	return false
}

// DisabledClient rejects all announces. Suitable for isolated peers which
// should not be announcing.
type DisabledClient struct{}

// Disabled returns a new DisabledClient.
func Disabled() Client {
	return DisabledClient{}
}

// Announce always returns error.
func (c DisabledClient) Announce(
	h core.InfoHash, downloaded int64, seeding bool, event Event) ([]*core.PeerInfo, error) {

	return nil, ErrDisabled
}
