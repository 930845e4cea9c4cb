// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import (
	"hash/crc32"
	"io"

	"github.com/siderolabs/go-blkid/internal/ioutil"
)

// HeaderSignature is the signature of the GPT header.
const HeaderSignature = 0x5452415020494645 // "EFI PART"

// CalculateChecksum calculates the checksum of the header.
func (h Header) CalculateChecksum() (uint32, error) {
	h.HeaderCRC32 = 0

	b, err := h.Pack(HeaderSize)
	if err != nil {
		return 0, err
	}

	return crc32.ChecksumIEEE(b[:HeaderSize]), nil
}

// HeaderReader is an interface for reading GPT headers.
type HeaderReader interface {
	io.ReaderAt
	GetSectorSize() uint
}

// ReadHeader reads the GPT header and partition entries.
//
// It does sanity checks on the header and partition entries.
// A nil header with a nil error means no valid header at this LBA.
func ReadHeader(r HeaderReader, lba, lastLBA uint64) (*Header, []*Entry, error) {
	sectorSize := r.GetSectorSize()
	buf := make([]byte, sectorSize)

	if err := ioutil.ReadFullAt(r, buf, int64(lba)*int64(sectorSize)); err != nil {
		return nil, nil, err
	}

	hdr, err := UnpackHeader(buf)
	if err != nil {
		return nil, nil, err
	}

	// verify the header signature
	if hdr.Signature != HeaderSignature {
		return nil, nil, nil
	}

	// sanity check the header size
	if hdr.HeaderSize < HeaderSize || uint(hdr.HeaderSize) > sectorSize {
		return nil, nil, nil
	}

	// verify the header checksum, the CRC covers header_size bytes
	crcBuf := make([]byte, hdr.HeaderSize)
	copy(crcBuf, buf)
	crcBuf[16], crcBuf[17], crcBuf[18], crcBuf[19] = 0, 0, 0, 0

	if hdr.HeaderCRC32 != crc32.ChecksumIEEE(crcBuf) {
		return nil, nil, nil
	}

	// verify LBA
	if hdr.MyLBA != lba {
		return nil, nil, nil
	}

	// verify the usable LBA range
	if hdr.LastUsableLBA < hdr.FirstUsableLBA || hdr.FirstUsableLBA > lastLBA || hdr.LastUsableLBA > lastLBA {
		return nil, nil, nil
	}

	// header should be outside the usable range
	if hdr.FirstUsableLBA < lba && lba < hdr.LastUsableLBA {
		return nil, nil, nil
	}

	if hdr.SizeofPartitionEntry != EntrySize {
		return nil, nil, nil
	}

	if hdr.NumPartitionEntries == 0 || hdr.NumPartitionEntries > NumEntries {
		return nil, nil, nil
	}

	// read partition entries, verify checksum
	entriesBuffer := make([]byte, hdr.NumPartitionEntries*EntrySize)

	if err := ioutil.ReadFullAt(r, entriesBuffer, int64(hdr.PartitionEntriesLBA)*int64(sectorSize)); err != nil {
		return nil, nil, err
	}

	if crc32.ChecksumIEEE(entriesBuffer) != hdr.PartitionEntryArrayCRC32 {
		return nil, nil, nil
	}

	entries := make([]*Entry, hdr.NumPartitionEntries)

	for i := range entries {
		entries[i], err = UnpackEntry(entriesBuffer[i*EntrySize : (i+1)*EntrySize])
		if err != nil {
			return nil, nil, err
		}
	}

	return hdr, entries, nil
}
