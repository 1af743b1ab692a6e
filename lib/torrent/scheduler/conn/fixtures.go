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
	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// HandshakerFixture returns a Handshaker with no-op stats and logging,
// suitable for testing.
func HandshakerFixture(config Config) *Handshaker {
	return NewHandshaker(
		config,
		tally.NoopScope,
		clock.New(),
		core.PeerIDFixture(),
		zap.NewNop().Sugar())
}

// ConfigFixture returns a Config with the default timeouts applied.
func ConfigFixture() Config {
	return Config{}.applyDefaults()
}
