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
package core

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// InfoHash is the 20-byte SHA1 hash of the bencoded info dictionary. It is
// the authoritative identifier for a torrent.
type InfoHash [20]byte

// NewInfoHashFromHex converts a hexadecimal string into an InfoHash.
func NewInfoHashFromHex(s string) (InfoHash, error) {
	if len(s) != 40 {
		return InfoHash{}, fmt.Errorf("invalid hash: expected 40 characters, got %d", len(s))
	}
	var h InfoHash
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return InfoHash{}, err
	}
	return h, nil
}

// NewInfoHashFromBytes computes the InfoHash checksum of b.
func NewInfoHashFromBytes(b []byte) InfoHash {
	var h InfoHash
	hasher := sha1.New()
	hasher.Write(b)
	copy(h[:], hasher.Sum(nil))
	return h
}

// Bytes returns the raw bytes of h.
func (h InfoHash) Bytes() []byte {
	return h[:]
}

// Hex returns the hexadecimal notation of h.
func (h InfoHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String encodes h in hexadecimal notation.
func (h InfoHash) String() string {
	return h.Hex()
}
