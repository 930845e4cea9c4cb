// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package vfat

import (
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
)

const (
	bootSectorSize = 0x5a
	tailOffset     = 0x24
)

// BPB is the BIOS parameter block shared by all FAT variants.
type BPB struct {
	Ignored     [3]byte
	SysID       [8]byte
	SectorSize  uint16
	ClusterSize uint8
	Reserved    uint16
	FATs        uint8
	DirEntries  uint16
	Sectors     uint16
	Media       uint8
	FATLength   uint16
	SecsTrack   uint16
	Heads       uint16
	Hidden      uint32
	TotalSect   uint32
}

// MSDOSTail is the FAT12/FAT16 extended boot record.
type MSDOSTail struct {
	Unknown [3]byte
	Serno   [4]byte
	Label   [11]byte
	Magic   [8]byte
}

// VFATTail is the FAT32 extended boot record.
type VFATTail struct {
	FAT32Length  uint32
	Flags        uint16
	Version      [2]byte
	RootCluster  uint32
	FSInfoSector uint16
	BackupBoot   uint16
	Reserved2    [12]byte
	Unknown      [3]byte
	Serno        [4]byte
	Label        [11]byte
	Magic        [8]byte
}

type bootSector struct {
	BPB

	MSDOS MSDOSTail
	VFAT  VFATTail
}

func decode(buf []byte) (*bootSector, error) {
	var bs bootSector

	if err := utils.UnpackLE(buf, &bs.BPB); err != nil {
		return nil, err
	}

	if err := utils.UnpackLE(buf[tailOffset:], &bs.MSDOS); err != nil {
		return nil, err
	}

	if err := utils.UnpackLE(buf[tailOffset:], &bs.VFAT); err != nil {
		return nil, err
	}

	return &bs, nil
}

func (bs *bootSector) isValid() bool {
	if bs.FATs == 0 {
		return false
	}

	if bs.Reserved == 0 {
		return false
	}

	if !(0xf8 <= bs.Media || bs.Media == 0xf0) {
		return false
	}

	if !utils.IsPowerOf2(bs.ClusterSize) {
		return false
	}

	if !utils.IsPowerOf2(bs.SectorSize) {
		return false
	}

	if bs.SectorSize < 512 || bs.SectorSize > 4096 {
		return false
	}

	return true
}

func (bs *bootSector) isFAT32() bool {
	return bs.FATLength == 0 && bs.VFAT.FAT32Length != 0
}

func (bs *bootSector) sectorCount() uint32 {
	if bs.Sectors != 0 {
		return uint32(bs.Sectors)
	}

	return bs.TotalSect
}

func (bs *bootSector) clusterCount() uint32 {
	rootDirSectors := (uint32(bs.DirEntries)*32 + uint32(bs.SectorSize) - 1) / uint32(bs.SectorSize)
	metaSectors := uint32(bs.Reserved) + uint32(bs.FATs)*uint32(bs.FATLength) + rootDirSectors

	total := bs.sectorCount()
	if total <= metaSectors {
		return 0
	}

	return (total - metaSectors) / uint32(bs.ClusterSize)
}
