// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gptstructs provides encoded definitions for GPT on-disk structures.
package gptstructs

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

const (
	// NumEntries is the number of entries in the GPT.
	NumEntries = 128

	// HeaderSize is the size of the encoded GPT header.
	HeaderSize = 92

	// EntrySize is the size of the encoded partition entry.
	EntrySize = 128

	// NameSize is the size of the UTF-16LE partition name field.
	NameSize = 72
)

var structOptions = &struc.Options{Order: binary.LittleEndian}

// Header is the GPT header (UEFI spec, table 5-5).
type Header struct {
	Signature                uint64
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	MyLBA                    uint64
	AlternateLBA             uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 [16]byte
	PartitionEntriesLBA      uint64
	NumPartitionEntries      uint32
	SizeofPartitionEntry     uint32
	PartitionEntryArrayCRC32 uint32
}

// Entry is the GPT partition entry (UEFI spec, table 5-6).
type Entry struct {
	PartitionTypeGUID   [16]byte
	UniquePartitionGUID [16]byte
	StartingLBA         uint64
	EndingLBA           uint64
	Attributes          uint64
	PartitionName       [NameSize]byte
}

// UnpackHeader decodes the header from the buffer.
func UnpackHeader(buf []byte) (*Header, error) {
	var hdr Header

	if err := struc.UnpackWithOptions(bytes.NewReader(buf), &hdr, structOptions); err != nil {
		return nil, err
	}

	return &hdr, nil
}

// Pack encodes the header into the beginning of a zeroed buffer of the given size.
func (h *Header) Pack(size int) ([]byte, error) {
	var out bytes.Buffer

	if err := struc.PackWithOptions(&out, h, structOptions); err != nil {
		return nil, err
	}

	buf := make([]byte, max(size, out.Len()))
	copy(buf, out.Bytes())

	return buf, nil
}

// UnpackEntry decodes a partition entry from the buffer.
func UnpackEntry(buf []byte) (*Entry, error) {
	var entry Entry

	if err := struc.UnpackWithOptions(bytes.NewReader(buf), &entry, structOptions); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Pack encodes the entry.
func (e *Entry) Pack() ([]byte, error) {
	var out bytes.Buffer

	if err := struc.PackWithOptions(&out, e, structOptions); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// IsEmpty returns true if the entry is not used.
func (e *Entry) IsEmpty() bool {
	return e.PartitionTypeGUID == [16]byte{}
}
