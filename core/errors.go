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

import "fmt"

// InvalidMetaInfoError occurs when a metainfo file is malformed or internally
// inconsistent.
type InvalidMetaInfoError struct {
	Reason string
}

func (e InvalidMetaInfoError) Error() string {
	return fmt.Sprintf("invalid metainfo: %s", e.Reason)
}

// IsInvalidMetaInfoError returns true if err is an InvalidMetaInfoError.
func IsInvalidMetaInfoError(err error) bool {
	_, ok := err.(InvalidMetaInfoError)
	return ok
}
