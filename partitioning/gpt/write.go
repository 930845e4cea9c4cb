// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/internal/gptstructs"
	"github.com/siderolabs/go-blkid/internal/gptutil"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

func zapPartition(no int, part *Partition) []zap.Field {
	return []zap.Field{
		zap.Int("partno", no),
		zap.String("name", part.Name),
		zap.Stringer("type", part.TypeGUID),
		zap.Uint64("first_lba", part.FirstLBA),
		zap.Uint64("last_lba", part.LastLBA),
	}
}

// encodeName converts the name to UTF-16LE, checking that it fits the entry.
func encodeName(name string) ([]byte, error) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, err
	}

	if len(encoded) > gptstructs.NameSize {
		return nil, fmt.Errorf("partition name %q is too long", name)
	}

	return encoded, nil
}

// Write stores both copies of the table and the protective MBR, and updates the kernel partition list.
func (t *Table) Write() error {
	entries, err := t.encodeEntries()
	if err != nil {
		return err
	}

	if err = t.writeHeaders(entries); err != nil {
		return err
	}

	if !t.options.SkipPMBR {
		if err = t.writePMBR(); err != nil {
			return err
		}
	}

	if err = t.dev.Sync(); err != nil {
		return fmt.Errorf("failed to sync device: %w", err)
	}

	t.logger.Info("partition table written",
		zap.Stringer("disk_guid", t.diskGUID),
		zap.Int("slots", len(t.entries)),
	)

	return t.syncKernel()
}

func (t *Table) encodeEntries() ([]byte, error) {
	buf := make([]byte, gptstructs.EntrySize*gptstructs.NumEntries)

	for i, part := range t.entries {
		if part == nil {
			continue
		}

		name, err := encodeName(part.Name)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i+1, err)
		}

		entry := gptstructs.Entry{
			StartingLBA: part.FirstLBA,
			EndingLBA:   part.LastLBA,
			Attributes:  part.Flags,
		}

		copy(entry.PartitionTypeGUID[:], gptutil.UUIDToGUID(part.TypeGUID[:]))
		copy(entry.UniquePartitionGUID[:], gptutil.UUIDToGUID(part.PartGUID[:]))
		copy(entry.PartitionName[:], name)

		packed, err := entry.Pack()
		if err != nil {
			return nil, fmt.Errorf("failed to pack partition %d: %w", i+1, err)
		}

		copy(buf[i*gptstructs.EntrySize:], packed)
	}

	return buf, nil
}

// writeHeaders writes the entry array and the header, backup copy goes first.
func (t *Table) writeHeaders(entries []byte) error {
	header := gptstructs.Header{
		Signature:                gptstructs.HeaderSignature,
		Revision:                 0x00010000,
		HeaderSize:               gptstructs.HeaderSize,
		FirstUsableLBA:           t.layout.firstUsable,
		LastUsableLBA:            t.layout.lastUsable,
		NumPartitionEntries:      gptstructs.NumEntries,
		SizeofPartitionEntry:     gptstructs.EntrySize,
		PartitionEntryArrayCRC32: crc32.ChecksumIEEE(entries),
	}

	copy(header.DiskGUID[:], gptutil.UUIDToGUID(t.diskGUID[:]))

	for _, copyOf := range []struct {
		name           string
		lba, alternate uint64
		entries        uint64
	}{
		{"backup", t.layout.backupHeader, t.layout.primaryHeader, t.layout.backupEntries},
		{"primary", t.layout.primaryHeader, t.layout.backupHeader, t.layout.primaryEntries},
	} {
		hdr := header
		hdr.MyLBA = copyOf.lba
		hdr.AlternateLBA = copyOf.alternate
		hdr.PartitionEntriesLBA = copyOf.entries

		checksum, err := hdr.CalculateChecksum()
		if err != nil {
			return fmt.Errorf("failed to checksum %s header: %w", copyOf.name, err)
		}

		hdr.HeaderCRC32 = checksum

		packed, err := hdr.Pack(int(t.sectorSize))
		if err != nil {
			return fmt.Errorf("failed to pack %s header: %w", copyOf.name, err)
		}

		if _, err = t.dev.WriteAt(entries, t.offset(copyOf.entries)); err != nil {
			return fmt.Errorf("failed to write %s entries: %w", copyOf.name, err)
		}

		if _, err = t.dev.WriteAt(packed, t.offset(copyOf.lba)); err != nil {
			return fmt.Errorf("failed to write %s header: %w", copyOf.name, err)
		}
	}

	return nil
}

func (t *Table) offset(lba uint64) int64 {
	return int64(lba) * int64(t.sectorSize)
}

// writePMBR writes a single 0xEE partition covering the disk, boot code in the sector is preserved.
func (t *Table) writePMBR() error {
	mbr := make([]byte, 512)

	if err := ioutil.ReadFullAt(t.dev, mbr, 0); err != nil {
		return fmt.Errorf("failed to read MBR: %w", err)
	}

	entry := mbr[446:462]
	clear(mbr[446:510])

	if t.options.MarkPMBRBootable {
		entry[0] = 0x80
	}

	copy(entry[1:4], []byte{0x00, 0x02, 0x00})
	entry[4] = 0xee
	copy(entry[5:8], []byte{0xff, 0xff, 0xff})

	binary.LittleEndian.PutUint32(entry[8:12], 1)
	binary.LittleEndian.PutUint32(entry[12:16], uint32(min(t.layout.lastLBA, math.MaxUint32)))

	mbr[510], mbr[511] = 0x55, 0xaa

	if _, err := t.dev.WriteAt(mbr, 0); err != nil {
		return fmt.Errorf("failed to write protective MBR: %w", err)
	}

	return nil
}

// syncKernel makes the kernel partition list match the table.
//
// Partitions in use can't be removed, they are resized in place instead.
func (t *Table) syncKernel() error {
	last, err := t.dev.GetKernelLastPartitionNum()
	if err != nil {
		return fmt.Errorf("failed to get kernel partitions: %w", err)
	}

	for no := 1; no <= max(last, len(t.entries)); no++ {
		var part *Partition

		if no <= len(t.entries) {
			part = t.entries[no-1]
		}

		err = t.dev.KernelPartitionDelete(no)

		switch {
		case err == nil, errors.Is(err, unix.ENXIO):
		case errors.Is(err, unix.EBUSY) && part != nil:
			t.logger.Debug("partition is busy, resizing", zap.Int("partno", no))

			if err = t.dev.KernelPartitionResize(no, uint64(t.offset(part.FirstLBA)), part.Sectors()*uint64(t.sectorSize)); err != nil {
				return fmt.Errorf("failed to resize partition %d: %w", no, err)
			}

			continue
		default:
			return fmt.Errorf("failed to delete partition %d: %w", no, err)
		}

		if part == nil {
			continue
		}

		if err = t.dev.KernelPartitionAdd(no, uint64(t.offset(part.FirstLBA)), part.Sectors()*uint64(t.sectorSize)); err != nil {
			return fmt.Errorf("failed to add partition %d: %w", no, err)
		}

		t.logger.Debug("kernel partition added", zapPartition(no, part)...)
	}

	return nil
}
