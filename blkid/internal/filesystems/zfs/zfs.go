// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zfs probes ZFS filesystems.
package zfs

import (
	"encoding/binary"
	"fmt"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

// https://github.com/util-linux/util-linux/blob/c0207d354ee47fb56acfa64b03b5b559bb301280/libblkid/src/superblocks/zfs.c
const (
	zfsUberblockCount = 128
	zfsUberblockSize  = 1024
	zfsVdevLabelSize  = 1024 * 256
	zfsStartOffset    = 1024 * 128
	zfsMinUberblocks  = 4 // Number of uberblocks to be found
)

const (
	zfsMagic     = uint64(0x00bab10c)
	zfsMagicSwap = uint64(0x0cb1ba00) // endian-swapped
)

// Uberblock is the leading part of a ZFS uberblock, in the pool's native byte order.
type Uberblock struct {
	Magic   uint64
	Version uint64
	TXG     uint64
	GUIDSum uint64
}

// Probe for the filesystem.
type Probe struct{}

// Magic returns nil, ZFS has no signature at a fixed offset.
func (p *Probe) Magic() []*magic.Magic {
	return nil
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "zfs_member"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	size := r.GetSize()

	if size < 2*zfsVdevLabelSize {
		return nil, nil //nolint:nilnil
	}

	// How many bytes between end of last label and the block dev
	lastLabelOffset := size % zfsVdevLabelSize

	var (
		ub       Uberblock
		found    int
		firstPos int64 = -1
	)

	for _, labelOffset := range []uint64{
		0,
		zfsStartOffset,
		zfsVdevLabelSize,
		size - 4*zfsStartOffset - lastLabelOffset,
		size - 3*zfsStartOffset - lastLabelOffset,
		size - 2*zfsStartOffset - lastLabelOffset,
		size - zfsStartOffset - lastLabelOffset,
	} {
		labelBuf, err := ioutil.ReadAt(r, int64(labelOffset), zfsStartOffset)
		if err != nil {
			return nil, err
		}

		for i := range zfsUberblockCount {
			ubBuf := labelBuf[i*zfsUberblockSize : (i+1)*zfsUberblockSize]

			var order binary.ByteOrder

			switch binary.LittleEndian.Uint64(ubBuf) {
			case zfsMagic:
				order = binary.LittleEndian
			case zfsMagicSwap:
				order = binary.BigEndian
			default:
				// Not a UB
				continue
			}

			ub = Uberblock{
				Magic:   zfsMagic,
				Version: order.Uint64(ubBuf[8:]),
				TXG:     order.Uint64(ubBuf[16:]),
				GUIDSum: order.Uint64(ubBuf[24:]),
			}

			if firstPos < 0 {
				firstPos = int64(labelOffset) + int64(i*zfsUberblockSize)
			}

			found++
		}

		if found >= zfsMinUberblocks {
			break
		}
	}

	if found < zfsMinUberblocks {
		// Not enough uberblocks
		return nil, nil //nolint:nilnil
	}

	uuidLabel := fmt.Sprintf("%016x", ub.GUIDSum)

	return &probe.Result{
		Label:   &uuidLabel,
		Version: fmt.Sprintf("%d", ub.Version),
		Magic: &magic.Magic{
			Offset: int(firstPos),
			Value:  binary.LittleEndian.AppendUint64(nil, zfsMagic),
		},
	}, nil
}
