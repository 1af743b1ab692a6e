// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// maketorrent creates a bencoded metainfo file for a file or directory.
package main

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/dung-h/LikeTorrent-242/core"

	"github.com/alecthomas/kingpin"
	"github.com/c2h5oh/datasize"
)

var (
	app = kingpin.New("maketorrent", "Creates a metainfo file for content distribution")

	announce    = app.Flag("announce", "Tracker announce URL").Required().String()
	pieceLength = app.Flag("piece-length", "Piece length, e.g. 256KB").Default("256KB").String()
	output      = app.Flag("output", "Output metainfo path").Short('o').String()
	input       = app.Arg("input", "Content file or directory").Required().String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	var pl datasize.ByteSize
	if err := pl.UnmarshalText([]byte(*pieceLength)); err != nil {
		log.Fatalf("Invalid piece length: %s", err)
	}

	stat, err := os.Stat(*input)
	if err != nil {
		log.Fatalf("Stat input: %s", err)
	}

	name := filepath.Base(filepath.Clean(*input))

	var info core.Info
	if stat.IsDir() {
		info, err = dirInfo(name, *input, int64(pl.Bytes()))
	} else {
		info, err = fileInfo(name, *input, int64(pl.Bytes()))
	}
	if err != nil {
		log.Fatalf("Build info: %s", err)
	}

	mi, err := core.NewMetaInfo(info, *announce)
	if err != nil {
		log.Fatalf("Build metainfo: %s", err)
	}
	b, err := mi.Serialize()
	if err != nil {
		log.Fatalf("Serialize metainfo: %s", err)
	}

	out := *output
	if out == "" {
		out = name + ".torrent"
	}
	if err := os.WriteFile(out, b, 0644); err != nil {
		log.Fatalf("Write metainfo: %s", err)
	}
	log.Printf("Wrote %s (hash=%s, pieces=%d)", out, mi.InfoHash().Hex(), mi.NumPieces())
}

func fileInfo(name, path string, pieceLength int64) (core.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Info{}, err
	}
	defer f.Close()
	return core.NewInfoFromBlob(name, f, pieceLength)
}

// dirInfo builds a multi-file info over every regular file under root, in
// sorted relative-path order.
func dirInfo(name, root string, pieceLength int64) (core.Info, error) {
	var paths []string
	err := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return core.Info{}, err
	}
	sort.Strings(paths)
	return core.NewInfoFromFiles(name, root, paths, pieceLength)
}
