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
	"bytes"
	"fmt"

	"github.com/dung-h/LikeTorrent-242/utils/randutil"
)

// BlobFixture joins content with its derived MetaInfo for testing
// convenience.
type BlobFixture struct {
	Content  []byte
	MetaInfo *MetaInfo
}

// Length returns the length of the blob.
func (f *BlobFixture) Length() int64 {
	return int64(len(f.Content))
}

// SizedBlobFixture creates a randomly generated single-file BlobFixture of
// the given size and piece length.
func SizedBlobFixture(size, pieceLength uint64) *BlobFixture {
	b := randutil.Text(size)
	name := fmt.Sprintf("blob-%s", randutil.Text(8))
	info, err := NewInfoFromBlob(name, bytes.NewReader(b), int64(pieceLength))
	if err != nil {
		panic(err)
	}
	mi, err := NewMetaInfo(info, "http://localhost:26232")
	if err != nil {
		panic(err)
	}
	return &BlobFixture{
		Content:  b,
		MetaInfo: mi,
	}
}

// NewBlobFixture creates a randomly generated BlobFixture.
func NewBlobFixture() *BlobFixture {
	return SizedBlobFixture(256, 8)
}

// MultiFileBlobFixture creates a randomly generated multi-file BlobFixture.
// Each entry of fileLengths becomes one file; content is the concatenated
// stream.
func MultiFileBlobFixture(fileLengths []uint64, pieceLength uint64) *BlobFixture {
	var content []byte
	var entries []FileEntry
	for i, n := range fileLengths {
		b := randutil.Text(n)
		content = append(content, b...)
		entries = append(entries, FileEntry{
			Length: int64(n),
			Path:   []string{fmt.Sprintf("file%d.bin", i)},
		})
	}
	_, pieces, err := generatePieces(bytes.NewReader(content), int64(pieceLength))
	if err != nil {
		panic(err)
	}
	info := Info{
		PieceLength: int64(pieceLength),
		Pieces:      pieces,
		Name:        fmt.Sprintf("multi-%s", randutil.Text(8)),
		Files:       entries,
	}
	mi, err := NewMetaInfo(info, "http://localhost:26232")
	if err != nil {
		panic(err)
	}
	return &BlobFixture{
		Content:  content,
		MetaInfo: mi,
	}
}

// MetaInfoFixture returns a randomly generated MetaInfo.
func MetaInfoFixture() *MetaInfo {
	return NewBlobFixture().MetaInfo
}

// CustomMetaInfoFixture returns a randomly generated MetaInfo of the given
// size and piece length.
func CustomMetaInfoFixture(size, pieceLength uint64) *MetaInfo {
	return SizedBlobFixture(size, pieceLength).MetaInfo
}

// InfoHashFixture returns a randomly generated InfoHash.
func InfoHashFixture() InfoHash {
	return MetaInfoFixture().InfoHash()
}

// PeerIDFixture returns a randomly generated PeerID.
func PeerIDFixture() PeerID {
	p, err := RandomPeerID()
	if err != nil {
		panic(err)
	}
	return p
}

// PeerInfoFixture returns a randomly generated PeerInfo.
func PeerInfoFixture() *PeerInfo {
	return NewPeerInfo(PeerIDFixture(), randutil.IP(), randutil.Port(), false)
}

// SeederPeerInfoFixture returns a randomly generated PeerInfo for a complete
// peer.
func SeederPeerInfoFixture() *PeerInfo {
	return NewPeerInfo(PeerIDFixture(), randutil.IP(), randutil.Port(), true)
}

// PeerContextFixture returns a randomly generated PeerContext.
func PeerContextFixture() PeerContext {
	pctx, err := NewPeerContext(
		RandomPeerIDFactory, "zone1", randutil.IP(), randutil.Port())
	if err != nil {
		panic(err)
	}
	return pctx
}
