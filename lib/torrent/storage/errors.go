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
package storage

import (
	"errors"
	"fmt"
)

// ErrPieceComplete occurs when Torrent cannot write a piece because it is
// already complete.
var ErrPieceComplete = errors.New("piece is already complete")

// ErrPieceNotComplete occurs when a piece is read before it has been
// written and verified.
var ErrPieceNotComplete = errors.New("piece not complete")

// ErrWritePieceConflict occurs when another thread is writing the same piece.
var ErrWritePieceConflict = errors.New("piece is already being written to")

// PieceHashMismatchError occurs when piece data fails hash verification.
type PieceHashMismatchError struct {
	Piece int
}

func (e PieceHashMismatchError) Error() string {
	return fmt.Sprintf("piece %d: hash mismatch", e.Piece)
}

// IsPieceHashMismatchError returns true if err is a PieceHashMismatchError.
func IsPieceHashMismatchError(err error) bool {
	_, ok := err.(PieceHashMismatchError)
	return ok
}

// PieceLengthMismatchError occurs when piece data has an unexpected length.
type PieceLengthMismatchError struct {
	Piece    int
	Expected int64
	Actual   int64
}

func (e PieceLengthMismatchError) Error() string {
	return fmt.Sprintf(
		"piece %d: length mismatch: expected %d, got %d", e.Piece, e.Expected, e.Actual)
}

// IsPieceLengthMismatchError returns true if err is a PieceLengthMismatchError.
func IsPieceLengthMismatchError(err error) bool {
	_, ok := err.(PieceLengthMismatchError)
	return ok
}
