// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ext

// superBlockSize is the size of the on-disk superblock, checksum is the last field.
const superBlockSize = 0x400

// SuperBlock is the leading part of the ext2/3/4 superblock (little-endian).
type SuperBlock struct {
	InodesCount         uint32
	BlocksCount         uint32
	RBlocksCount        uint32
	FreeBlocksCount     uint32
	FreeInodesCount     uint32
	FirstDataBlock      uint32
	LogBlockSize        uint32
	LogClusterSize      uint32
	BlocksPerGroup      uint32
	ClustersPerGroup    uint32
	InodesPerGroup      uint32
	MTime               uint32
	WTime               uint32
	MntCount            uint16
	MaxMntCount         uint16
	Magic               uint16
	State               uint16
	Errors              uint16
	MinorRevLevel       uint16
	LastCheck           uint32
	CheckInterval       uint32
	CreatorOS           uint32
	RevLevel            uint32
	DefResUID           uint16
	DefResGID           uint16
	FirstIno            uint32
	InodeSize           uint16
	BlockGroupNr        uint16
	FeatureCompat       uint32
	FeatureIncompat     uint32
	FeatureROCompat     uint32
	UUID                [16]byte
	VolumeName          [16]byte
	LastMounted         [64]byte
	AlgorithmUsage      uint32
	PreallocBlocks      uint8
	PreallocDirBlocks   uint8
	ReservedGDTBlocks   uint16
	JournalUUID         [16]byte
	JournalInum         uint32
	JournalDev          uint32
	LastOrphan          uint32
	HashSeed            [16]byte
	DefHashVersion      uint8
	JnlBackupType       uint8
	DescSize            uint16
	DefaultMountOpts    uint32
	FirstMetaBG         uint32
	MkfsTime            uint32
	JnlBlocks           [68]byte
	BlocksCountHi       uint32
}

// BlockSize returns the block size of the filesystem.
func (s *SuperBlock) BlockSize() uint32 {
	if s.LogBlockSize >= 22 {
		return 0
	}

	return 1024 << s.LogBlockSize
}

// FilesystemSize returns the size of the filesystem.
func (s *SuperBlock) FilesystemSize() uint64 {
	blocks := uint64(s.BlocksCount)

	if s.FeatureIncompat&EXT4_FEATURE_INCOMPAT_64BIT != 0 {
		blocks |= uint64(s.BlocksCountHi) << 32
	}

	return blocks * uint64(s.BlockSize())
}
