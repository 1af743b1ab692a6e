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
package piecereader

import (
	"fmt"
	"io"
	"os"
)

// Segment is a byte range within a single file.
type Segment struct {
	Path   string
	Offset int64
	Length int64
}

// SpanReader is a storage.PieceReader which lazily reads a piece spanning
// one or more file segments. Files are opened one at a time as the read
// progresses.
type SpanReader struct {
	segments []Segment
	length   int

	cur    int
	reader io.Reader
	closer io.Closer
}

// NewSpanReader creates a SpanReader over the given segments.
func NewSpanReader(segments []Segment) *SpanReader {
	var length int64
	for _, s := range segments {
		length += s.Length
	}
	return &SpanReader{segments: segments, length: int(length)}
}

// Read reads the piece into p, advancing through file segments as each is
// exhausted.
func (r *SpanReader) Read(p []byte) (int, error) {
	for {
		if r.reader == nil {
			if r.cur >= len(r.segments) {
				return 0, io.EOF
			}
			s := r.segments[r.cur]
			f, err := os.Open(s.Path)
			if err != nil {
				return 0, fmt.Errorf("open segment: %s", err)
			}
			if _, err := f.Seek(s.Offset, io.SeekStart); err != nil {
				f.Close()
				return 0, fmt.Errorf("seek segment: %s", err)
			}
			r.reader = io.LimitReader(f, s.Length)
			r.closer = f
		}
		n, err := r.reader.Read(p)
		if err == io.EOF {
			r.closer.Close()
			r.reader = nil
			r.closer = nil
			r.cur++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close closes the currently open segment, if any.
func (r *SpanReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Length returns the length of the piece.
func (r *SpanReader) Length() int {
	return r.length
}
