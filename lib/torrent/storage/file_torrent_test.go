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
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dung-h/LikeTorrent-242/core"
	"github.com/dung-h/LikeTorrent-242/lib/torrent/storage/piecereader"

	"github.com/stretchr/testify/require"
)

func fileTorrentFixture(t *testing.T, blob *core.BlobFixture) *FileTorrent {
	t.Helper()

	ft, err := NewFileTorrent(t.TempDir(), blob.MetaInfo)
	require.NoError(t, err)
	return ft
}

// pieceData returns the expected bytes of piece pi in blob.
func pieceData(blob *core.BlobFixture, pi int) []byte {
	start := int64(pi) * blob.MetaInfo.PieceLength()
	end := start + blob.MetaInfo.GetPieceLength(pi)
	return blob.Content[start:end]
}

func TestFileTorrentCreateAllocatesFiles(t *testing.T) {
	require := require.New(t)

	blob := core.MultiFileBlobFixture([]uint64{100, 200, 50}, 64)
	baseDir := t.TempDir()

	_, err := NewFileTorrent(baseDir, blob.MetaInfo)
	require.NoError(err)

	for _, f := range blob.MetaInfo.Files() {
		info, err := os.Stat(filepath.Join(baseDir, f.RelativePath))
		require.NoError(err)
		require.Equal(f.Length, info.Size())
	}
}

func TestFileTorrentWriteReadRoundTrip(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(3072, 1024)
	ft := fileTorrentFixture(t, blob)

	require.False(ft.Complete())
	require.Equal([]int{0, 1, 2}, ft.MissingPieces())

	for i := 0; i < ft.NumPieces(); i++ {
		require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, i)), i))

		data, err := ft.ReadPiece(i)
		require.NoError(err)
		require.Equal(pieceData(blob, i), data)
	}
	require.True(ft.Complete())
	require.Empty(ft.MissingPieces())
}

func TestFileTorrentShortLastPiece(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(2560, 1024)
	ft := fileTorrentFixture(t, blob)

	require.Equal(3, ft.NumPieces())
	require.Equal(int64(1024), ft.PieceLength(0))
	require.Equal(int64(512), ft.PieceLength(2))

	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 2)), 2))
	data, err := ft.ReadPiece(2)
	require.NoError(err)
	require.Len(data, 512)
}

func TestFileTorrentWritePieceIdempotent(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(1024, 1024)
	ft := fileTorrentFixture(t, blob)

	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)), 0))
	err := ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)), 0)
	require.Equal(ErrPieceComplete, err)

	data, err := ft.ReadPiece(0)
	require.NoError(err)
	require.Equal(pieceData(blob, 0), data)
}

func TestFileTorrentWritePieceRejectsBadHash(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(2048, 1024)
	ft := fileTorrentFixture(t, blob)

	corrupted := append([]byte{}, pieceData(blob, 0)...)
	corrupted[0] ^= 0xff

	err := ft.WritePiece(piecereader.NewBuffer(corrupted), 0)
	require.True(IsPieceHashMismatchError(err))
	require.False(ft.HasPiece(0))
	require.Equal([]int{0, 1}, ft.MissingPieces())

	// The piece remains writable with correct data.
	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)), 0))
	require.True(ft.HasPiece(0))
}

func TestFileTorrentWritePieceRejectsBadLength(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(2048, 1024)
	ft := fileTorrentFixture(t, blob)

	err := ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)[:100]), 0)
	require.True(IsPieceLengthMismatchError(err))
	require.False(ft.HasPiece(0))
}

func TestFileTorrentWritePieceInvalidIndex(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(1024, 1024)
	ft := fileTorrentFixture(t, blob)

	require.Error(ft.WritePiece(piecereader.NewBuffer([]byte{1}), 5))
	require.Error(ft.WritePiece(piecereader.NewBuffer([]byte{1}), -1))
}

func TestFileTorrentResume(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(3072, 1024)
	baseDir := t.TempDir()

	ft, err := NewFileTorrent(baseDir, blob.MetaInfo)
	require.NoError(err)
	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)), 0))

	// A fresh instance over the same base path rebuilds piece statuses from
	// disk.
	resumed, err := NewFileTorrent(baseDir, blob.MetaInfo)
	require.NoError(err)
	require.True(resumed.HasPiece(0))
	require.Equal([]int{1, 2}, resumed.MissingPieces())
}

func TestFileTorrentMultiFileSpansAndResume(t *testing.T) {
	require := require.New(t)

	// Piece 0 crosses the boundary of the first two files; the last piece is
	// short.
	blob := core.MultiFileBlobFixture([]uint64{100, 1000, 180}, 512)
	baseDir := t.TempDir()

	ft, err := NewFileTorrent(baseDir, blob.MetaInfo)
	require.NoError(err)
	require.Equal(3, ft.NumPieces())

	for i := 0; i < ft.NumPieces(); i++ {
		require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, i)), i))
	}
	require.True(ft.Complete())

	// Each output file holds exactly its region of the content stream.
	var reassembled []byte
	for _, f := range blob.MetaInfo.Files() {
		b, err := os.ReadFile(filepath.Join(baseDir, f.RelativePath))
		require.NoError(err)
		reassembled = append(reassembled, b...)
	}
	require.Equal(blob.Content, reassembled)

	resumed, err := NewFileTorrent(baseDir, blob.MetaInfo)
	require.NoError(err)
	require.True(resumed.Complete())
}

func TestFileTorrentGetPieceReader(t *testing.T) {
	require := require.New(t)

	blob := core.MultiFileBlobFixture([]uint64{300, 300, 424}, 512)
	ft := fileTorrentFixture(t, blob)

	_, err := ft.GetPieceReader(0)
	require.Equal(ErrPieceNotComplete, err)

	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 0)), 0))

	r, err := ft.GetPieceReader(0)
	require.NoError(err)
	defer r.Close()
	require.Equal(512, r.Length())
	data, err := io.ReadAll(r)
	require.NoError(err)
	require.Equal(pieceData(blob, 0), data)
}

func TestFileTorrentConcurrentWritesDistinctPieces(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(8192, 512)
	ft := fileTorrentFixture(t, blob)

	var wg sync.WaitGroup
	for i := 0; i < ft.NumPieces(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, i)), i))
		}(i)
	}
	wg.Wait()

	require.True(ft.Complete())
	for i := 0; i < ft.NumPieces(); i++ {
		data, err := ft.ReadPiece(i)
		require.NoError(err)
		require.Equal(pieceData(blob, i), data)
	}
}

func TestFileTorrentBitfieldSnapshot(t *testing.T) {
	require := require.New(t)

	blob := core.SizedBlobFixture(2048, 1024)
	ft := fileTorrentFixture(t, blob)

	require.NoError(ft.WritePiece(piecereader.NewBuffer(pieceData(blob, 1)), 1))

	b := ft.Bitfield()
	require.False(b.Test(0))
	require.True(b.Test(1))
	require.Equal(uint(1), b.Count())
}
