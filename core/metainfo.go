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
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	bencode "github.com/jackpal/bencode-go"
)

// FileEntry is an entry of the info "files" list for multi-file torrents.
type FileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Info is a torrent info dictionary.
type Info struct {
	PieceLength int64       `bencode:"piece length"`
	Pieces      Pieces      `bencode:"pieces"`
	Name        string      `bencode:"name"`
	Length      int64       `bencode:"length,omitempty"`
	Files       []FileEntry `bencode:"files,omitempty"`
}

// FileInfo describes a single output file within the concatenated content
// stream: its path relative to the torrent root, its length, and its
// starting offset in the stream.
type FileInfo struct {
	RelativePath string `json:"path"`
	Length       int64  `json:"length"`
	Offset       int64  `json:"offset"`
}

// MetaInfo contains torrent metadata.
type MetaInfo struct {
	Info     Info
	Announce string

	// infoHash is computed from Info on construction to avoid rehashing.
	infoHash InfoHash
}

// metaInfoFile is the bencoded on-disk form of MetaInfo.
type metaInfoFile struct {
	Info     Info   `bencode:"info"`
	Announce string `bencode:"announce"`
}

// NewInfoFromBlob creates a new single-file Info by hashing blob in
// pieceLength chunks.
func NewInfoFromBlob(name string, blob io.Reader, pieceLength int64) (Info, error) {
	length, pieces, err := generatePieces(blob, pieceLength)
	if err != nil {
		return Info{}, fmt.Errorf("generate pieces: %s", err)
	}
	return Info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
		Length:      length,
	}, nil
}

// NewInfoFromFiles creates a new multi-file Info. Paths are hashed as one
// concatenated stream in the given order. Each path must be relative.
func NewInfoFromFiles(
	name, root string, paths []string, pieceLength int64) (Info, error) {

	var entries []FileEntry
	var readers []io.Reader
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(filepath.Join(root, p))
		if err != nil {
			return Info{}, fmt.Errorf("open file: %s", err)
		}
		closers = append(closers, f)
		fi, err := f.Stat()
		if err != nil {
			return Info{}, fmt.Errorf("stat file: %s", err)
		}
		entries = append(entries, FileEntry{
			Length: fi.Size(),
			Path:   splitPath(p),
		})
		readers = append(readers, f)
	}
	_, pieces, err := generatePieces(io.MultiReader(readers...), pieceLength)
	if err != nil {
		return Info{}, fmt.Errorf("generate pieces: %s", err)
	}
	return Info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
		Files:       entries,
	}, nil
}

// NewMetaInfo creates a MetaInfo from info, computing its hash.
func NewMetaInfo(info Info, announce string) (*MetaInfo, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	h, err := info.ComputeInfoHash()
	if err != nil {
		return nil, fmt.Errorf("compute info hash: %s", err)
	}
	return &MetaInfo{
		Info:     info,
		Announce: announce,
		infoHash: h,
	}, nil
}

// DeserializeMetaInfo parses a bencoded torrent file.
func DeserializeMetaInfo(data []byte) (*MetaInfo, error) {
	var f metaInfoFile
	if err := bencode.Unmarshal(bytes.NewReader(data), &f); err != nil {
		return nil, InvalidMetaInfoError{fmt.Sprintf("bencode: %s", err)}
	}
	return NewMetaInfo(f.Info, f.Announce)
}

// NewMetaInfoFromFile parses a bencoded torrent file at the given path.
func NewMetaInfoFromFile(path string) (*MetaInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metainfo: %s", err)
	}
	return DeserializeMetaInfo(data)
}

// Serialize returns mi as a bencoded torrent file.
func (mi *MetaInfo) Serialize() ([]byte, error) {
	var b bytes.Buffer
	if err := bencode.Marshal(&b, metaInfoFile{mi.Info, mi.Announce}); err != nil {
		return nil, fmt.Errorf("bencode: %s", err)
	}
	return b.Bytes(), nil
}

// InfoHash returns the torrent InfoHash.
func (mi *MetaInfo) InfoHash() InfoHash {
	return mi.infoHash
}

// Name returns the torrent name.
func (mi *MetaInfo) Name() string {
	return mi.Info.Name
}

// NumPieces returns the number of pieces in the torrent.
func (mi *MetaInfo) NumPieces() int {
	return mi.Info.NumPieces()
}

// PieceLength returns the piece length used to break up the content. Note,
// the final piece may be shorter than this. Use GetPieceLength for the true
// length of each piece.
func (mi *MetaInfo) PieceLength() int64 {
	return mi.Info.PieceLength
}

// GetPieceLength returns the length of piece i, or 0 if i is out of bounds.
func (mi *MetaInfo) GetPieceLength(i int) int64 {
	n := mi.NumPieces()
	if i < 0 || i >= n {
		return 0
	}
	if i == n-1 {
		return mi.TotalLength() - mi.Info.PieceLength*int64(i)
	}
	return mi.Info.PieceLength
}

// TotalLength returns the total length of the content stream.
func (mi *MetaInfo) TotalLength() int64 {
	return mi.Info.TotalLength()
}

// PieceHash returns the expected SHA1 digest of piece i.
func (mi *MetaInfo) PieceHash(i int) ([]byte, error) {
	return mi.Info.PieceHash(i)
}

// Files returns the resolved file layout of the content stream, in order,
// with absolute starting offsets.
func (mi *MetaInfo) Files() []FileInfo {
	if len(mi.Info.Files) == 0 {
		return []FileInfo{{RelativePath: mi.Info.Name, Length: mi.Info.Length}}
	}
	files := make([]FileInfo, 0, len(mi.Info.Files))
	var offset int64
	for _, e := range mi.Info.Files {
		p := filepath.Join(append([]string{mi.Info.Name}, e.Path...)...)
		files = append(files, FileInfo{
			RelativePath: p,
			Length:       e.Length,
			Offset:       offset,
		})
		offset += e.Length
	}
	return files
}

func (mi *MetaInfo) String() string {
	return fmt.Sprintf(
		"metainfo(name=%s, hash=%s, pieces=%d)",
		mi.Name(), mi.InfoHash().Hex(), mi.NumPieces())
}

// TotalLength returns the total length of the content stream.
func (info *Info) TotalLength() int64 {
	if len(info.Files) == 0 {
		return info.Length
	}
	var total int64
	for _, f := range info.Files {
		total += f.Length
	}
	return total
}

// NumPieces returns the number of pieces in the torrent.
func (info *Info) NumPieces() int {
	return len(info.Pieces) / sha1.Size
}

// PieceHash returns the expected SHA1 digest of piece i.
func (info *Info) PieceHash(i int) ([]byte, error) {
	if i < 0 || i >= info.NumPieces() {
		return nil, fmt.Errorf("piece index %d out of range [0, %d)", i, info.NumPieces())
	}
	start := i * sha1.Size
	hash := make([]byte, sha1.Size)
	copy(hash, info.Pieces[start:start+sha1.Size])
	return hash, nil
}

// Validate returns InvalidMetaInfoError if the Info is malformed or
// internally inconsistent.
func (info *Info) Validate() error {
	if len(info.Pieces)%sha1.Size != 0 {
		return InvalidMetaInfoError{"pieces has invalid length"}
	}
	if info.Name == "" {
		return InvalidMetaInfoError{"no name"}
	}
	if info.Length > 0 && len(info.Files) > 0 {
		return InvalidMetaInfoError{"both length and files are set"}
	}
	for _, f := range info.Files {
		if f.Length <= 0 {
			return InvalidMetaInfoError{"file with non-positive length"}
		}
		if len(f.Path) == 0 {
			return InvalidMetaInfoError{"file with empty path"}
		}
	}
	if info.PieceLength <= 0 {
		if info.TotalLength() != 0 {
			return InvalidMetaInfoError{"zero piece length"}
		}
		return nil
	}
	total := info.TotalLength()
	expected := int((total + info.PieceLength - 1) / info.PieceLength)
	if expected != info.NumPieces() {
		return InvalidMetaInfoError{fmt.Sprintf(
			"piece count and file lengths are at odds: %d pieces for %d bytes at piece length %d",
			info.NumPieces(), total, info.PieceLength)}
	}
	return nil
}

// ComputeInfoHash hashes the canonical bencoding of info.
func (info *Info) ComputeInfoHash() (InfoHash, error) {
	var b bytes.Buffer
	if err := bencode.Marshal(&b, *info); err != nil {
		return InfoHash{}, fmt.Errorf("bencode: %s", err)
	}
	return NewInfoHashFromBytes(b.Bytes()), nil
}

// generatePieces hashes blob content in pieceLength chunks.
func generatePieces(blob io.Reader, pieceLength int64) (length int64, pieces Pieces, err error) {
	if pieceLength <= 0 {
		return 0, nil, InvalidMetaInfoError{"piece length must be positive"}
	}
	for {
		h := sha1.New()
		n, err := io.CopyN(h, blob, pieceLength)
		if err != nil && err != io.EOF {
			return 0, nil, fmt.Errorf("read blob: %s", err)
		}
		length += n
		if n == 0 {
			break
		}
		pieces = h.Sum(pieces)
		if n < pieceLength {
			break
		}
	}
	return length, pieces, nil
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}
