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
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Control opcodes. A control frame is a single UTF-8 encoded write of either
// the bare opcode or "OPCODE:argument". Piece payloads are raw bytes framed
// only by their announced length; no control framing follows them.
const (
	opEstablish   = "ESTABLISH"
	opEstablished = "ESTABLISHED"
	opChoked      = "CHOKED"
	opBitfield    = "BITFIELD"
	opRequest     = "REQUEST"
)

// maxControlFrameSize bounds a single control frame read. Bitfield frames
// are the largest: two hex characters per eight pieces.
const maxControlFrameSize = 64 * 1024

// controlFrame is a parsed control message.
type controlFrame struct {
	op  string
	arg string
}

func (f controlFrame) String() string {
	if f.arg == "" {
		return f.op
	}
	return f.op + ":" + f.arg
}

// sendControl writes a control frame in a single write with the given
// timeout.
//
// NOTE: We do not use the clock interface here because the net package uses
// the system clock when evaluating deadlines.
func sendControl(nc net.Conn, f controlFrame, timeout time.Duration) error {
	if err := nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	if _, err := nc.Write([]byte(f.String())); err != nil {
		return fmt.Errorf("write control frame: %s", err)
	}
	return nil
}

// readControl reads a single control frame with the given timeout. Control
// frames are delimited by write boundaries, hence a single read.
func readControl(nc net.Conn, timeout time.Duration) (controlFrame, error) {
	if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return controlFrame{}, fmt.Errorf("set read deadline: %s", err)
	}
	buf := make([]byte, maxControlFrameSize)
	n, err := nc.Read(buf)
	if err != nil {
		return controlFrame{}, err
	}
	return parseControl(string(buf[:n]))
}

func parseControl(line string) (controlFrame, error) {
	op := line
	arg := ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		op, arg = line[:i], line[i+1:]
	}
	switch op {
	case opEstablish, opEstablished, opChoked, opBitfield, opRequest:
		return controlFrame{op, arg}, nil
	default:
		return controlFrame{}, ProtocolViolationError{line}
	}
}

// requestFrame builds a REQUEST frame for piece i.
func requestFrame(i int) controlFrame {
	return controlFrame{opRequest, strconv.Itoa(i)}
}

// parseRequestIndex parses the piece index of a REQUEST frame.
func parseRequestIndex(f controlFrame) (int, error) {
	i, err := strconv.Atoi(f.arg)
	if err != nil || i < 0 {
		return 0, ProtocolViolationError{f.String()}
	}
	return i, nil
}
