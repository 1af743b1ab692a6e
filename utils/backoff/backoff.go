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
package backoff

import (
	"errors"
	"math/rand"
	"time"
)

// Config defines Backoff configuration.
type Config struct {
	Min          time.Duration `yaml:"min"`
	Max          time.Duration `yaml:"max"`
	Factor       float64       `yaml:"factor"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`

	// NoJitter disables randomization of backoff intervals. Used for
	// deterministic tests.
	NoJitter bool `yaml:"no_jitter"`
}

func (c Config) applyDefaults() Config {
	if c.Min == 0 {
		c.Min = 250 * time.Millisecond
	}
	if c.Max == 0 {
		c.Max = 30 * time.Second
	}
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.RetryTimeout == 0 {
		c.RetryTimeout = 3 * time.Minute
	}
	return c
}

// Backoff is a factory for bounded exponential backoff attempt loops.
type Backoff struct {
	config Config
}

// New creates a new Backoff.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// Attempts tracks a single attempt loop. The first attempt executes
// immediately; each subsequent attempt waits for an exponentially growing
// interval, until the retry timeout is exhausted.
type Attempts struct {
	config   Config
	n        int
	elapsed  time.Duration
	interval time.Duration
	err      error
}

// Attempts returns a new Attempts.
func (b *Backoff) Attempts() *Attempts {
	return &Attempts{config: b.config, interval: b.config.Min}
}

// WaitForNext sleeps until the next attempt may execute and returns true.
// Returns false once the retry timeout would be exceeded; the terminating
// error is then available via Err. At least one attempt is always granted.
func (a *Attempts) WaitForNext() bool {
	if a.n == 0 {
		a.n++
		return true
	}
	d := a.interval
	if !a.config.NoJitter {
		// Jitter within [d/2, d).
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	if a.elapsed+d > a.config.RetryTimeout {
		a.err = errors.New("retry timeout exhausted")
		return false
	}
	time.Sleep(d)
	a.elapsed += d
	a.interval = time.Duration(float64(a.interval) * a.config.Factor)
	if a.interval > a.config.Max {
		a.interval = a.config.Max
	}
	a.n++
	return true
}

// Err returns the error which terminated the attempt loop, if any.
func (a *Attempts) Err() error {
	return a.err
}
