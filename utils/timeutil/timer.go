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
package timeutil

import (
	"sync"
	"time"
)

// Timer is a wrapper around time.Timer which adds idempotent Start / Cancel
// semantics. The zero value is not usable; use NewTimer.
type Timer struct {
	// C fires once after the timer has been started for the full duration.
	C <-chan time.Time

	d  time.Duration
	mu sync.Mutex
	t  *time.Timer
	c  chan time.Time
}

// NewTimer creates a new Timer which fires after d once started.
func NewTimer(d time.Duration) *Timer {
	c := make(chan time.Time, 1)
	return &Timer{C: c, d: d, c: c}
}

// Start starts the timer. Returns false if the timer is already running.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		return false
	}
	t.t = time.AfterFunc(t.d, func() {
		t.mu.Lock()
		t.t = nil
		t.mu.Unlock()
		t.c <- time.Now()
	})
	return true
}

// Cancel stops a running timer, preventing it from firing. Returns false if
// the timer is not running, either because it was never started or because
// it already fired.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t == nil {
		return false
	}
	stopped := t.t.Stop()
	if stopped {
		t.t = nil
	}
	return stopped
}
