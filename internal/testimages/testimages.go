// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package testimages provides small filesystem images for tests.
//
// Images are produced by mkfs.ext4 and mkswap and stored zstd-compressed:
//
//	ext4.img: 4 MiB, label "extlabel", UUID 6d9b9c7c-8c3e-4f4a-9b1e-3a6f2d6c1e01, 1 KiB blocks
//	swap.img: 1 MiB, label "swaplabel", UUID 0f0e0d0c-0b0a-4908-8706-050403020100, 4 KiB pages
package testimages

import (
	"bytes"
	"embed"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*.zst
var images embed.FS

// Image names.
const (
	Ext4 = "ext4.img"
	Swap = "swap.img"
)

// Load returns the decompressed image.
func Load(t testing.TB, name string) []byte {
	t.Helper()

	compressed, err := images.ReadFile("testdata/" + name + ".zst")
	require.NoError(t, err)

	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)

	defer zr.Close()

	out, err := io.ReadAll(zr)
	require.NoError(t, err)

	return out
}

// WriteAt writes the decompressed image into the file at path at the given offset.
//
// The file is created if it doesn't exist, and never truncated.
func WriteAt(t testing.TB, path, name string, offset int64) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)

	_, err = f.WriteAt(Load(t, name), offset)
	require.NoError(t, err)

	require.NoError(t, f.Close())
}

// Reader is an in-memory probe reader.
type Reader struct {
	*bytes.Reader

	SectorSize uint
}

// NewReader wraps the buffer with 512-byte sectors.
func NewReader(buf []byte) *Reader {
	return &Reader{Reader: bytes.NewReader(buf), SectorSize: 512}
}

// GetSectorSize implements probe.Reader.
func (r *Reader) GetSectorSize() uint {
	return r.SectorSize
}

// GetSize implements probe.Reader.
func (r *Reader) GetSize() uint64 {
	return uint64(r.Reader.Size())
}
