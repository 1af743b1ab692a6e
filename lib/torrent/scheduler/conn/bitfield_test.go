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
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"
)

func TestBitfieldHexRoundTrip(t *testing.T) {
	tests := []struct {
		desc string
		n    int
		set  []uint
	}{
		{"empty", 8, nil},
		{"full byte", 8, []uint{0, 1, 2, 3, 4, 5, 6, 7}},
		{"padding bits unused", 10, []uint{0, 9}},
		{"single piece", 1, []uint{0}},
		{"sparse", 100, []uint{3, 50, 99}},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			require := require.New(t)

			b := bitset.New(uint(test.n))
			for _, i := range test.set {
				b.Set(i)
			}
			decoded, err := decodeBitfieldHex(encodeBitfieldHex(b, test.n), test.n)
			require.NoError(err)
			require.True(b.Equal(decoded))
		})
	}
}

func TestBitfieldHexEncoding(t *testing.T) {
	require := require.New(t)

	// Piece 0 maps to the most significant bit of the first byte.
	b := bitset.New(10)
	b.Set(0)
	b.Set(8)
	require.Equal("8080", encodeBitfieldHex(b, 10))
}

func TestDecodeBitfieldHexErrors(t *testing.T) {
	tests := []struct {
		desc  string
		input string
		n     int
	}{
		{"not hex", "zz", 8},
		{"length mismatch", "80", 16},
		{"too long", "8080", 8},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, err := decodeBitfieldHex(test.input, test.n)
			require.Error(t, err)
		})
	}
}

func TestParseControl(t *testing.T) {
	require := require.New(t)

	f, err := parseControl("REQUEST:42")
	require.NoError(err)
	require.Equal("REQUEST", f.op)
	i, err := parseRequestIndex(f)
	require.NoError(err)
	require.Equal(42, i)

	_, err = parseControl("NONSENSE")
	require.True(IsProtocolViolationError(err))

	_, err = parseRequestIndex(controlFrame{opRequest, "abc"})
	require.True(IsProtocolViolationError(err))

	_, err = parseRequestIndex(controlFrame{opRequest, "-1"})
	require.True(IsProtocolViolationError(err))
}
