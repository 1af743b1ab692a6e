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
	"encoding/hex"
	"encoding/json"
)

// Pieces is the concatenation of raw 20-byte piece hashes.
type Pieces []byte

// MarshalJSON encodes raw hashes as a hex string.
func (p Pieces) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(p))
}

// UnmarshalJSON decodes a hex string into raw hash bytes.
func (p *Pieces) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
