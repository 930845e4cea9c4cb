// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package dos probes DOS (MBR) partition tables.
package dos

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rekby/mbr"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vfat"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const (
	sectorSize = 512

	diskIDOffset  = 0x1B8
	entriesOffset = 0x1BE
	numEntries    = 4

	bootActive = 0x80

	// logical partitions are numbered after the four primary slots.
	firstLogical = 5

	// maximum number of EBRs followed in the chain.
	maxEBRs = 100
)

// Partition type codes.
const (
	TypeExtended    = 0x05
	TypeExtendedLBA = 0x0f
	TypeLinuxExt    = 0x85
	TypeProtective  = 0xee
)

var dosMagic = magic.Magic{
	Offset: 510,
	Value:  []byte{0x55, 0xAA},
}

// Entry is an on-disk partition table entry.
type Entry struct {
	BootIndicator uint8
	StartCHS      [3]byte
	Type          uint8
	EndCHS        [3]byte
	StartLBA      uint32
	Sectors       uint32
}

// IsExtended returns true if the entry is an extended partition container.
func (e *Entry) IsExtended() bool {
	return IsExtendedType(e.Type)
}

// IsExtendedType returns true for the extended partition type codes.
func IsExtendedType(t uint8) bool {
	switch t {
	case TypeExtended, TypeExtendedLBA, TypeLinuxExt:
		return true
	default:
		return false
	}
}

func readEntries(sector []byte) ([numEntries]Entry, error) {
	var entries [numEntries]Entry

	if err := utils.UnpackLE(sector[entriesOffset:entriesOffset+numEntries*16], &entries); err != nil {
		return entries, err
	}

	return entries, nil
}

// Probe for the partition table.
type Probe struct{}

// Magic returns the magic value for the partition table.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&dosMagic}
}

// Name returns the name of the partition table.
func (p *Probe) Name() string {
	return "dos"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return 0
}

// Probe runs the further inspection and returns the result if successful.
//
//nolint:gocyclo,cyclop
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	buf, err := ioutil.ReadAt(r, 0, sectorSize)
	if err != nil {
		return nil, err
	}

	table, err := mbr.Read(bytes.NewReader(buf))
	if err != nil || table == nil {
		return nil, nil //nolint:nilnil,nilerr
	}

	entries, err := readEntries(buf)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.BootIndicator != 0 && entry.BootIndicator != bootActive {
			return nil, nil //nolint:nilnil
		}
	}

	for _, part := range table.GetAllPartitions() {
		if !part.IsEmpty() && part.GetType() == mbr.PART_GPT {
			// protective MBR, GPT prober takes over
			return nil, nil //nolint:nilnil
		}
	}

	// FAT boot sector carries the same signature
	if vfat.IsBootSector(buf) {
		return nil, nil //nolint:nilnil
	}

	ss := uint64(r.GetSectorSize())
	if ss == 0 {
		ss = sectorSize
	}

	diskID := fmt.Sprintf("%08x", binary.LittleEndian.Uint32(buf[diskIDOffset:]))

	result := &probe.Result{
		UUID: diskID,

		BlockSize:  uint32(ss),
		ProbedSize: r.GetSize(),

		Tables: []probe.Table{
			{
				Type:   "dos",
				ID:     diskID,
				Parent: -1,
			},
		},
	}

	for i, part := range table.GetAllPartitions() {
		partno := uint(i + 1)

		entry := entries[i]

		if part.IsEmpty() || entry.Sectors == 0 {
			// empty slots keep their number
			continue
		}

		result.Parts = append(result.Parts, probe.Partition{
			UUID:  fmt.Sprintf("%s-%02x", diskID, partno),
			Type:  uint64(part.GetType()),
			Flags: uint64(entry.BootIndicator),
			Index: partno,

			Offset: uint64(part.GetLBAStart()) * ss,
			Size:   uint64(part.GetLBALast()-part.GetLBAStart()+1) * ss,

			Extended: entry.IsExtended(),
		})
	}

	for idx := range len(result.Parts) {
		if !result.Parts[idx].Extended {
			continue
		}

		if err = p.probeExtended(r, result, idx, diskID, ss); err != nil {
			return nil, err
		}

		// only one extended partition is followed
		break
	}

	return result, nil
}

// probeExtended walks the EBR chain of the extended partition at index parent.
func (p *Probe) probeExtended(r probe.Reader, result *probe.Result, parent int, diskID string, ss uint64) error {
	extStart := result.Parts[parent].Offset / ss
	extEnd := extStart + result.Parts[parent].Size/ss

	result.Tables = append(result.Tables, probe.Table{
		Type:   "dos",
		ID:     result.Tables[0].ID,
		Offset: result.Parts[parent].Offset,
		Parent: parent,
	})

	tableIdx := len(result.Tables) - 1
	partno := uint(firstLogical)
	cur := extStart

	for range maxEBRs {
		if cur < extStart || cur >= extEnd {
			break
		}

		buf, err := ioutil.ReadAt(r, int64(cur*ss), sectorSize)
		if err != nil {
			if ioutil.IsShortRead(err) {
				return nil
			}

			return err
		}

		if !dosMagic.Matches(buf) {
			break
		}

		entries, err := readEntries(buf)
		if err != nil {
			return err
		}

		var next uint64

		for _, entry := range entries {
			if entry.Sectors == 0 {
				continue
			}

			if entry.IsExtended() {
				if next == 0 {
					next = extStart + uint64(entry.StartLBA)
				}

				continue
			}

			start := cur + uint64(entry.StartLBA)
			if start+uint64(entry.Sectors) > extEnd {
				continue
			}

			result.Parts = append(result.Parts, probe.Partition{
				UUID:  fmt.Sprintf("%s-%02x", diskID, partno),
				Type:  uint64(entry.Type),
				Flags: uint64(entry.BootIndicator),
				Index: partno,

				Offset: start * ss,
				Size:   uint64(entry.Sectors) * ss,

				Table:   tableIdx,
				Logical: true,
			})

			partno++
		}

		if next == 0 || next == cur {
			break
		}

		cur = next
	}

	return nil
}
