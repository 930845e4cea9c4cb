// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xfs

// XFS superblock structure constants.
//
//nolint:revive,stylecheck
const (
	XFS_MIN_BLOCKSIZE_LOG  = 9  /* i.e. 512 bytes */
	XFS_MAX_BLOCKSIZE_LOG  = 16 /* i.e. 65536 bytes */
	XFS_MIN_BLOCKSIZE      = (1 << XFS_MIN_BLOCKSIZE_LOG)
	XFS_MAX_BLOCKSIZE      = (1 << XFS_MAX_BLOCKSIZE_LOG)
	XFS_MIN_SECTORSIZE_LOG = 9  /* i.e. 512 bytes */
	XFS_MAX_SECTORSIZE_LOG = 15 /* i.e. 32768 bytes */
	XFS_MIN_SECTORSIZE     = (1 << XFS_MIN_SECTORSIZE_LOG)
	XFS_MAX_SECTORSIZE     = (1 << XFS_MAX_SECTORSIZE_LOG)

	XFS_DINODE_MIN_LOG  = 8
	XFS_DINODE_MAX_LOG  = 11
	XFS_DINODE_MIN_SIZE = (1 << XFS_DINODE_MIN_LOG)
	XFS_DINODE_MAX_SIZE = (1 << XFS_DINODE_MAX_LOG)

	XFS_MAX_RTEXTSIZE = (1024 * 1024 * 1024) /* 1GB */
	XFS_MIN_RTEXTSIZE = (4 * 1024)           /* 4kB */
)

const superBlockSize = 0x80

// SuperBlock is the leading part of the on-disk XFS superblock (big-endian).
type SuperBlock struct {
	MagicNum   uint32
	BlockSize  uint32
	DBlocks    uint64
	RBlocks    uint64
	RExtents   uint64
	UUID       [16]byte
	LogStart   uint64
	RootIno    uint64
	RBMIno     uint64
	RSumIno    uint64
	RExtSize   uint32
	AGBlocks   uint32
	AGCount    uint32
	RBMBlocks  uint32
	LogBlocks  uint32
	VersionNum uint16
	SectSize   uint16
	InodeSize  uint16
	InoPBlock  uint16
	FName      [12]byte
	BlockLog   uint8
	SectLog    uint8
	InodeLog   uint8
	InoPBLog   uint8
	AGBlkLog   uint8
	RExtSLog   uint8
	InProgress uint8
	IMaxPct    uint8
}

// Valid returns true if the superblock is valid.
//
//nolint:gocyclo,cyclop
func (s *SuperBlock) Valid() bool {
	rtext := uint64(s.RExtSize) * uint64(s.BlockSize)

	if s.AGCount == 0 ||
		s.SectSize < XFS_MIN_SECTORSIZE ||
		s.SectSize > XFS_MAX_SECTORSIZE ||
		s.SectLog < XFS_MIN_SECTORSIZE_LOG ||
		s.SectLog > XFS_MAX_SECTORSIZE_LOG ||
		uint32(s.SectSize) != (1<<s.SectLog) ||
		s.BlockSize < XFS_MIN_BLOCKSIZE ||
		s.BlockSize > XFS_MAX_BLOCKSIZE ||
		s.BlockLog < XFS_MIN_BLOCKSIZE_LOG ||
		s.BlockLog > XFS_MAX_BLOCKSIZE_LOG ||
		s.BlockSize != (1<<s.BlockLog) ||
		s.InodeSize < XFS_DINODE_MIN_SIZE ||
		s.InodeSize > XFS_DINODE_MAX_SIZE ||
		s.InodeLog < XFS_DINODE_MIN_LOG ||
		s.InodeLog > XFS_DINODE_MAX_LOG ||
		uint32(s.InodeSize) != (1<<s.InodeLog) ||
		(s.BlockLog-s.InodeLog != s.InoPBLog) ||
		rtext > XFS_MAX_RTEXTSIZE ||
		rtext < XFS_MIN_RTEXTSIZE ||
		(s.IMaxPct > 100 /* zero sb_imax_pct is valid */) ||
		s.DBlocks == 0 {
		return false
	}

	return true
}

// FilesystemSize returns the size of the filesystem in bytes.
func (s *SuperBlock) FilesystemSize() uint64 {
	var logBlocks uint64

	if s.LogStart != 0 {
		logBlocks = uint64(s.LogBlocks)
	}

	return (s.DBlocks - logBlocks) * uint64(s.BlockSize)
}
