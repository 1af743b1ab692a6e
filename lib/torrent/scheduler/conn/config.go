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
package conn

import (
	"time"

	"github.com/dung-h/LikeTorrent-242/utils/bandwidth"
	"github.com/dung-h/LikeTorrent-242/utils/memsize"
)

// Config is the configuration for individual live connections.
type Config struct {

	// HandshakeTimeout is the timeout for dialing, writing, and reading
	// connections during handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ControlTimeout is the timeout for reading and writing individual
	// control frames on an established connection.
	ControlTimeout time.Duration `yaml:"control_timeout"`

	// PayloadTimeout is the timeout for accumulating a full piece payload.
	PayloadTimeout time.Duration `yaml:"payload_timeout"`

	// UploadChunkSize is the write granularity when streaming a piece
	// payload to the remote peer.
	UploadChunkSize int `yaml:"upload_chunk_size"`

	Bandwidth bandwidth.Config `yaml:"bandwidth"`
}

func (c Config) applyDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.ControlTimeout == 0 {
		c.ControlTimeout = 15 * time.Second
	}
	if c.PayloadTimeout == 0 {
		c.PayloadTimeout = 30 * time.Second
	}
	if c.UploadChunkSize == 0 {
		c.UploadChunkSize = int(4 * memsize.KB)
	}
	return c
}
