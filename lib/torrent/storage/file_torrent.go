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
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage/piecereader"

	"github.com/willf/bitset"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var _ Torrent = (*FileTorrent)(nil)

// fileSpan maps a region of the concatenated content stream onto a single
// output file.
type fileSpan struct {
	path   string
	offset int64
	length int64
}

// FileTorrent implements Torrent on top of a mapped multi-file layout under
// a base directory. It allows concurrent writes on distinct pieces and
// concurrent reads on all pieces. Behavior is undefined if multiple
// FileTorrent instances are backed by the same files.
type FileTorrent struct {
	metaInfo    *core.MetaInfo
	files       []fileSpan
	pieces      []*piece
	numComplete *atomic.Int32

	// Serializes all disk writes.
	mu sync.Mutex
}

// NewFileTorrent creates a FileTorrent under baseDir. Any missing output
// files are created and pre-allocated to their declared lengths, then a
// resume scan rebuilds piece statuses by hashing existing on-disk bytes.
func NewFileTorrent(baseDir string, mi *core.MetaInfo) (*FileTorrent, error) {
	var files []fileSpan
	for _, f := range mi.Files() {
		p := filepath.Join(baseDir, f.RelativePath)
		if err := allocateFile(p, f.Length); err != nil {
			return nil, fmt.Errorf("allocate %s: %s", p, err)
		}
		files = append(files, fileSpan{path: p, offset: f.Offset, length: f.Length})
	}

	t := &FileTorrent{
		metaInfo:    mi,
		files:       files,
		pieces:      make([]*piece, mi.NumPieces()),
		numComplete: atomic.NewInt32(0),
	}
	for i := range t.pieces {
		t.pieces[i] = &piece{}
	}
	if err := t.restorePieces(); err != nil {
		return nil, fmt.Errorf("restore pieces: %s", err)
	}
	return t, nil
}

// allocateFile creates the file at path (and any missing parent
// directories) and truncates it to length.
func allocateFile(path string, length int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() != length {
		return f.Truncate(length)
	}
	return nil
}

// restorePieces hashes every piece on disk and marks those which match
// their expected digest as complete.
func (t *FileTorrent) restorePieces() error {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range t.pieces {
		i := i
		g.Go(func() error {
			data, err := t.readPieceData(i)
			if err != nil {
				// A piece we cannot read is simply not ours yet.
				return nil
			}
			expected, err := t.metaInfo.PieceHash(i)
			if err != nil {
				return err
			}
			sum := sha1.Sum(data)
			if bytes.Equal(sum[:], expected) {
				t.pieces[i].markComplete()
				t.numComplete.Inc()
			}
			return nil
		})
	}
	return g.Wait()
}

// Name returns the torrent name.
func (t *FileTorrent) Name() string {
	return t.metaInfo.Name()
}

// Stat returns the TorrentInfo for t.
func (t *FileTorrent) Stat() *TorrentInfo {
	return NewTorrentInfo(t.metaInfo, t.Bitfield())
}

// InfoHash returns the torrent metainfo hash.
func (t *FileTorrent) InfoHash() core.InfoHash {
	return t.metaInfo.InfoHash()
}

// NumPieces returns the number of pieces in the torrent.
func (t *FileTorrent) NumPieces() int {
	return len(t.pieces)
}

// Length returns the total length of the content stream.
func (t *FileTorrent) Length() int64 {
	return t.metaInfo.TotalLength()
}

// PieceLength returns the length of piece pi.
func (t *FileTorrent) PieceLength(pi int) int64 {
	return t.metaInfo.GetPieceLength(pi)
}

// MaxPieceLength returns the longest piece length of the torrent.
func (t *FileTorrent) MaxPieceLength() int64 {
	return t.metaInfo.PieceLength()
}

// Complete indicates whether the torrent is complete or not.
func (t *FileTorrent) Complete() bool {
	return int(t.numComplete.Load()) == len(t.pieces)
}

// BytesDownloaded returns an estimate of the number of bytes downloaded in
// the torrent.
func (t *FileTorrent) BytesDownloaded() int64 {
	n := int64(t.numComplete.Load()) * t.metaInfo.PieceLength()
	if n > t.Length() {
		return t.Length()
	}
	return n
}

// Bitfield returns a snapshot of the piece status bitfield, where true
// denotes a complete piece.
func (t *FileTorrent) Bitfield() *bitset.BitSet {
	bitfield := bitset.New(uint(len(t.pieces)))
	for i, p := range t.pieces {
		if p.complete() {
			bitfield.Set(uint(i))
		}
	}
	return bitfield
}

func (t *FileTorrent) String() string {
	downloaded := int(float64(t.BytesDownloaded()) / float64(t.Length()) * 100)
	return fmt.Sprintf(
		"torrent(name=%s, hash=%s, downloaded=%d%%)",
		t.Name(), t.InfoHash().Hex(), downloaded)
}

// HasPiece returns if piece pi is complete.
func (t *FileTorrent) HasPiece(pi int) bool {
	p, err := t.getPiece(pi)
	if err != nil {
		return false
	}
	return p.complete()
}

// MissingPieces returns a snapshot of the indices of all missing pieces in
// ascending order.
func (t *FileTorrent) MissingPieces() []int {
	var missing []int
	for i, p := range t.pieces {
		if !p.complete() {
			missing = append(missing, i)
		}
	}
	return missing
}

// WritePiece verifies src against the expected length and digest of piece
// pi, then writes it to the mapped file spans and marks the piece complete.
// Returns ErrPieceComplete if the piece was already written.
func (t *FileTorrent) WritePiece(src PieceReader, pi int) error {
	p, err := t.getPiece(pi)
	if err != nil {
		return err
	}
	expected := t.PieceLength(pi)
	if int64(src.Length()) != expected {
		return PieceLengthMismatchError{
			Piece:    pi,
			Expected: expected,
			Actual:   int64(src.Length()),
		}
	}

	// Exit quickly if the piece is not writable.
	if p.complete() {
		return ErrPieceComplete
	}
	if p.dirty() {
		return ErrWritePieceConflict
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read piece data: %s", err)
	}
	if int64(len(data)) != expected {
		return PieceLengthMismatchError{
			Piece:    pi,
			Expected: expected,
			Actual:   int64(len(data)),
		}
	}
	expectedHash, err := t.metaInfo.PieceHash(pi)
	if err != nil {
		return err
	}
	sum := sha1.Sum(data)
	if !bytes.Equal(sum[:], expectedHash) {
		return PieceHashMismatchError{Piece: pi}
	}

	dirty, complete := p.tryMarkDirty()
	if dirty {
		return ErrWritePieceConflict
	} else if complete {
		return ErrPieceComplete
	}

	// At this point we have verified the data and ensured we are the only
	// thread which may write the piece.

	if err := t.writePieceData(pi, data); err != nil {
		// Allow other threads to retry the piece.
		p.markEmpty()
		return fmt.Errorf("write piece: %s", err)
	}
	p.markComplete()
	t.numComplete.Inc()
	return nil
}

// GetPieceReader returns a reader over the file segments of piece pi.
// Returns ErrPieceNotComplete if the piece has not been verified yet.
func (t *FileTorrent) GetPieceReader(pi int) (PieceReader, error) {
	p, err := t.getPiece(pi)
	if err != nil {
		return nil, err
	}
	if !p.complete() {
		return nil, ErrPieceNotComplete
	}
	return piecereader.NewSpanReader(t.pieceSegments(pi)), nil
}

// ReadPiece reads the raw bytes of piece pi. Returns ErrPieceNotComplete if
// the piece has not been verified yet.
func (t *FileTorrent) ReadPiece(pi int) ([]byte, error) {
	p, err := t.getPiece(pi)
	if err != nil {
		return nil, err
	}
	if !p.complete() {
		return nil, ErrPieceNotComplete
	}
	return t.readPieceData(pi)
}

func (t *FileTorrent) getPiece(pi int) (*piece, error) {
	if pi < 0 || pi >= len(t.pieces) {
		return nil, fmt.Errorf("invalid piece index %d: num pieces = %d", pi, len(t.pieces))
	}
	return t.pieces[pi], nil
}

// pieceSegments projects piece pi onto its overlapping file regions.
func (t *FileTorrent) pieceSegments(pi int) []piecereader.Segment {
	start := int64(pi) * t.metaInfo.PieceLength()
	end := start + t.PieceLength(pi)

	var segments []piecereader.Segment
	for _, f := range t.files {
		overlapStart := max64(start, f.offset)
		overlapEnd := min64(end, f.offset+f.length)
		if overlapStart >= overlapEnd {
			continue
		}
		segments = append(segments, piecereader.Segment{
			Path:   f.path,
			Offset: overlapStart - f.offset,
			Length: overlapEnd - overlapStart,
		})
	}
	return segments
}

// readPieceData reads the exact expected bytes of piece pi from the mapped
// files. Returns an error if any file is missing or short.
func (t *FileTorrent) readPieceData(pi int) ([]byte, error) {
	expected := t.PieceLength(pi)
	data := make([]byte, 0, expected)
	for _, s := range t.pieceSegments(pi) {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %s", s.Path, err)
		}
		buf := make([]byte, s.Length)
		_, err = f.ReadAt(buf, s.Offset)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %s", s.Path, err)
		}
		data = append(data, buf...)
	}
	if int64(len(data)) != expected {
		return nil, fmt.Errorf(
			"short piece %d: read %d bytes, expected %d", pi, len(data), expected)
	}
	return data, nil
}

// writePieceData writes data across the file spans of piece pi under the
// write lock.
func (t *FileTorrent) writePieceData(pi int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := int64(pi) * t.metaInfo.PieceLength()
	var written int64
	for _, s := range t.pieceSegments(pi) {
		f, err := os.OpenFile(s.Path, os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %s", s.Path, err)
		}
		fileStart := t.segmentContentOffset(s) - start
		_, err = f.WriteAt(data[fileStart:fileStart+s.Length], s.Offset)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %s", s.Path, err)
		}
		written += s.Length
	}
	if written != int64(len(data)) {
		return fmt.Errorf(
			"short piece write %d: wrote %d bytes, expected %d", pi, written, len(data))
	}
	return nil
}

// segmentContentOffset returns the absolute offset of s within the
// concatenated content stream.
func (t *FileTorrent) segmentContentOffset(s piecereader.Segment) int64 {
	for _, f := range t.files {
		if f.path == s.Path {
			return f.offset + s.Offset
		}
	}
	return 0
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
