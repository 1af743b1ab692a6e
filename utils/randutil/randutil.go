// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package randutil provides utilities for generating random test data.
package randutil

import (
	"fmt"
	"math/rand"
	"time"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

const chars = "abcdefghijklmnopqrstuvwxyz0123456789"

// Text returns randomly generated alphanumeric text of length n.
func Text(n uint64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return b
}

// Blob returns randomly generated bytes of length n.
func Blob(n uint64) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// IP returns a randomly generated ip address.
func IP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		rand.Intn(256), rand.Intn(256), rand.Intn(256), rand.Intn(256))
}

// Port returns a randomly generated port in the ephemeral range.
func Port() int {
	return 49152 + rand.Intn(65535-49152)
}

// Duration returns a random duration below limit.
func Duration(limit time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(limit)))
}
