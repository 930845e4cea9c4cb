// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"io"

	"github.com/siderolabs/go-blkid/internal/ioutil"
)

// maxCachedBuffers limits the number of buffers kept between resets.
const maxCachedBuffers = 64

type buffer struct {
	data   []byte
	offset uint64
}

func (b *buffer) covers(offset, length uint64) bool {
	return offset >= b.offset && offset+length <= b.offset+uint64(len(b.data))
}

type byteRange struct {
	offset uint64
	length uint64
}

// buffers reads the probing area through a cache of buffers.
//
// Offsets are relative to the start of the probing area.
// Hidden ranges read as zeroes until reset.
type buffers struct {
	r io.ReaderAt

	offset     uint64
	size       uint64
	sectorSize uint

	cached []*buffer
	hidden []byteRange
}

// ReadAt implements io.ReaderAt.
func (b *buffers) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrArgument, off)
	}

	offset := uint64(off)

	if offset >= b.size {
		return 0, io.EOF
	}

	n := min(uint64(len(p)), b.size-offset)

	data, err := b.get(offset, n)
	if err != nil {
		return 0, err
	}

	copy(p, data)
	b.applyHidden(p[:n], offset)

	if n < uint64(len(p)) {
		return int(n), io.EOF
	}

	return int(n), nil
}

func (b *buffers) get(offset, length uint64) ([]byte, error) {
	for _, buf := range b.cached {
		if buf.covers(offset, length) {
			start := offset - buf.offset

			return buf.data[start : start+length], nil
		}
	}

	data := make([]byte, length)

	if err := ioutil.ReadFullAt(b.r, data, int64(b.offset+offset)); err != nil {
		return nil, err
	}

	if len(b.cached) >= maxCachedBuffers {
		b.cached = b.cached[:0]
	}

	b.cached = append(b.cached, &buffer{offset: offset, data: data})

	return data, nil
}

func (b *buffers) applyHidden(p []byte, offset uint64) {
	end := offset + uint64(len(p))

	for _, h := range b.hidden {
		start := max(h.offset, offset)
		stop := min(h.offset+h.length, end)

		if start >= stop {
			continue
		}

		clear(p[start-offset : stop-offset])
	}
}

func (b *buffers) hide(offset, length uint64) error {
	if length == 0 || offset+length < offset || offset+length > b.size {
		return fmt.Errorf("%w: range %d+%d is outside of the probing area", ErrArgument, offset, length)
	}

	b.hidden = append(b.hidden, byteRange{offset: offset, length: length})

	return nil
}

// drop the cached data, hidden ranges are kept.
func (b *buffers) drop() {
	b.cached = nil
}

func (b *buffers) reset() {
	b.cached = nil
	b.hidden = nil
}

// GetSectorSize implements probe.Reader.
func (b *buffers) GetSectorSize() uint {
	return b.sectorSize
}

// GetSize implements probe.Reader.
func (b *buffers) GetSize() uint64 {
	return b.size
}
