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
	"encoding/hex"
	"fmt"

	"github.com/willf/bitset"
)

// encodeBitfieldHex encodes a bitfield of n pieces as a hex string. The
// encoding is big-endian bit-per-piece, padded to a byte boundary: piece 0
// is the most significant bit of the first byte.
func encodeBitfieldHex(b *bitset.BitSet, n int) string {
	raw := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if b.Test(uint(i)) {
			raw[i/8] |= 1 << uint(7-i%8)
		}
	}
	return hex.EncodeToString(raw)
}

// decodeBitfieldHex decodes a hex bitfield string into a bitset of n pieces.
func decodeBitfieldHex(s string, n int) (*bitset.BitSet, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode bitfield hex: %s", err)
	}
	if len(raw) != (n+7)/8 {
		return nil, fmt.Errorf(
			"bitfield length mismatch: got %d bytes for %d pieces", len(raw), n)
	}
	b := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		if raw[i/8]&(1<<uint(7-i%8)) != 0 {
			b.Set(uint(i))
		}
	}
	return b, nil
}
