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
	"errors"
	"fmt"
	"net"
)

// ErrChoked occurs when a remote peer denies the handshake because it has no
// free upload slot.
var ErrChoked = errors.New("remote peer choked the connection")

// ErrConnClosed occurs when an operation is attempted on a closed Conn.
var ErrConnClosed = errors.New("conn is closed")

// ErrIncompletePayload occurs when the remote peer closes the connection
// before the full piece payload has been received.
var ErrIncompletePayload = errors.New("incomplete piece payload")

// ProtocolViolationError occurs when an unexpected control frame is
// received.
type ProtocolViolationError struct {
	Line string
}

func (e ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: unexpected control frame %q", e.Line)
}

// IsProtocolViolationError returns true if err is a ProtocolViolationError.
func IsProtocolViolationError(err error) bool {
	_, ok := err.(ProtocolViolationError)
	return ok
}

// IsTimeoutError returns true if err is a network timeout.
func IsTimeoutError(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
