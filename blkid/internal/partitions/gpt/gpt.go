// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt probes GPT partition tables.
package gpt

import (
	"bytes"

	"github.com/rekby/mbr"
	"github.com/siderolabs/go-pointer"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/gptstructs"
	"github.com/siderolabs/go-blkid/internal/gptutil"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

// Probe for the partition table.
type Probe struct {
	// Force probing even if LBA 0 holds a valid non-protective MBR.
	Force bool
}

// Magic returns nil, the header location depends on the sector size.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// Name returns the name of the partition table.
func (p *Probe) Name() string {
	return "gpt"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return 0
}

const primaryLBA = 1

// Probe runs the further inspection and returns the result if successful.
//
//nolint:gocyclo,cyclop
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	lastLBA, ok := gptutil.LastLBA(r)
	if !ok || lastLBA < primaryLBA {
		return nil, nil //nolint:nilnil
	}

	if !p.Force {
		legacy, err := hasLegacyMBR(r)
		if err != nil {
			return nil, err
		}

		if legacy {
			return nil, nil //nolint:nilnil
		}
	}

	headerLBA := uint64(primaryLBA)

	// try reading primary header
	hdr, entries, err := gptstructs.ReadHeader(r, primaryLBA, lastLBA)
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		// try reading backup header
		headerLBA = lastLBA

		hdr, entries, err = gptstructs.ReadHeader(r, lastLBA, lastLBA)
		if err != nil {
			return nil, err
		}
	}

	if hdr == nil {
		// no header, skip
		return nil, nil //nolint:nilnil
	}

	ptUUID, err := gptutil.GUIDString(hdr.DiskGUID[:])
	if err != nil {
		return nil, err
	}

	sectorSize := r.GetSectorSize()

	result := &probe.Result{
		UUID: ptUUID,

		Magic: &magic.Magic{
			Offset: int(headerLBA * uint64(sectorSize)),
			Value:  []byte("EFI PART"),
		},

		BlockSize:  uint32(sectorSize),
		ProbedSize: uint64(sectorSize) * (hdr.LastUsableLBA - hdr.FirstUsableLBA + 1),

		Tables: []probe.Table{
			{
				Type:   "gpt",
				ID:     ptUUID,
				Offset: headerLBA * uint64(sectorSize),
				Parent: -1,
			},
		},
	}

	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

	for idx, entry := range entries {
		// partition numbers follow the entry slot, holes are preserved
		partIdx := uint(idx + 1)

		if entry.StartingLBA < hdr.FirstUsableLBA || entry.EndingLBA > hdr.LastUsableLBA || entry.EndingLBA < entry.StartingLBA {
			continue
		}

		// skip zero GUIDs
		if entry.IsEmpty() {
			continue
		}

		partUUID, err := gptutil.GUIDString(entry.UniquePartitionGUID[:])
		if err != nil {
			return nil, err
		}

		typeUUID, err := gptutil.GUIDString(entry.PartitionTypeGUID[:])
		if err != nil {
			return nil, err
		}

		name, err := utf16.NewDecoder().Bytes(entry.PartitionName[:])
		if err != nil {
			return nil, err
		}

		name = bytes.TrimRight(name, "\x00")

		result.Parts = append(result.Parts, probe.Partition{
			UUID:       partUUID,
			TypeString: typeUUID,
			Name:       pointer.To(string(name)),
			Flags:      entry.Attributes,

			Index: partIdx,

			Offset: entry.StartingLBA * uint64(sectorSize),
			Size:   (entry.EndingLBA - entry.StartingLBA + 1) * uint64(sectorSize),
		})
	}

	return result, nil
}

// hasLegacyMBR returns true if LBA 0 holds a valid MBR with real partitions and no protective entry.
func hasLegacyMBR(r probe.Reader) (bool, error) {
	buf, err := ioutil.ReadAt(r, 0, 512)
	if err != nil {
		return false, err
	}

	table, err := mbr.Read(bytes.NewReader(buf))
	if err != nil || table == nil {
		return false, nil //nolint:nilerr
	}

	legacy := false

	for _, part := range table.GetAllPartitions() {
		if part.IsEmpty() {
			continue
		}

		if part.GetType() == mbr.PART_GPT {
			return false, nil
		}

		legacy = true
	}

	return legacy, nil
}
