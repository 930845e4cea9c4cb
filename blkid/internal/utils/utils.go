// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package utils provides utility functions.
package utils

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/lunixbochs/struc"
)

var castagnoliTable = sync.OnceValue(func() *crc32.Table {
	return crc32.MakeTable(crc32.Castagnoli)
})

// CRC32c returns values compatible with Linux crc32c function.
func CRC32c(buf []byte) uint32 {
	return ^crc32.Update(0, castagnoliTable(), buf)
}

// IsPowerOf2 returns true if num is a power of 2.
func IsPowerOf2[T uint8 | uint16 | uint32 | uint64 | uint](num T) bool {
	return (num != 0 && ((num & (num - 1)) == 0))
}

var (
	littleEndian = &struc.Options{Order: binary.LittleEndian}
	bigEndian    = &struc.Options{Order: binary.BigEndian}
)

// UnpackLE decodes a little-endian on-disk structure from the buffer.
func UnpackLE(buf []byte, v any) error {
	return struc.UnpackWithOptions(bytes.NewReader(buf), v, littleEndian)
}

// UnpackBE decodes a big-endian on-disk structure from the buffer.
func UnpackBE(buf []byte, v any) error {
	return struc.UnpackWithOptions(bytes.NewReader(buf), v, bigEndian)
}

// CString returns the bytes up to the first NUL.
func CString(buf []byte) []byte {
	if idx := bytes.IndexByte(buf, 0); idx != -1 {
		return buf[:idx]
	}

	return buf
}

// IsZero returns true if all bytes are zero.
func IsZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}

	return true
}
