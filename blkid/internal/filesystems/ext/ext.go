// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ext probes extfs filesystems.
package ext

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const sbOffset = 0x400

// Feature flags.
//
//nolint:revive,stylecheck
const (
	EXT2_FEATURE_RO_COMPAT_SPARSE_SUPER = 0x0001
	EXT2_FEATURE_RO_COMPAT_LARGE_FILE   = 0x0002
	EXT2_FEATURE_RO_COMPAT_BTREE_DIR    = 0x0004
	EXT2_FEATURE_INCOMPAT_FILETYPE      = 0x0002
	EXT2_FEATURE_INCOMPAT_META_BG       = 0x0010

	EXT3_FEATURE_INCOMPAT_RECOVER     = 0x0004
	EXT3_FEATURE_COMPAT_HAS_JOURNAL   = 0x0004
	EXT3_FEATURE_INCOMPAT_JOURNAL_DEV = 0x0008

	EXT2_FEATURE_RO_COMPAT_SUPP        = EXT2_FEATURE_RO_COMPAT_SPARSE_SUPER | EXT2_FEATURE_RO_COMPAT_LARGE_FILE | EXT2_FEATURE_RO_COMPAT_BTREE_DIR
	EXT2_FEATURE_INCOMPAT_SUPP         = EXT2_FEATURE_INCOMPAT_FILETYPE | EXT2_FEATURE_INCOMPAT_META_BG
	EXT2_FEATURE_INCOMPAT_UNSUPPORTED  = ^uint32(EXT2_FEATURE_INCOMPAT_SUPP)
	EXT2_FEATURE_RO_COMPAT_UNSUPPORTED = ^uint32(EXT2_FEATURE_RO_COMPAT_SUPP)

	EXT3_FEATURE_RO_COMPAT_SUPP        = EXT2_FEATURE_RO_COMPAT_SPARSE_SUPER | EXT2_FEATURE_RO_COMPAT_LARGE_FILE | EXT2_FEATURE_RO_COMPAT_BTREE_DIR
	EXT3_FEATURE_INCOMPAT_SUPP         = EXT2_FEATURE_INCOMPAT_FILETYPE | EXT3_FEATURE_INCOMPAT_RECOVER | EXT2_FEATURE_INCOMPAT_META_BG
	EXT3_FEATURE_INCOMPAT_UNSUPPORTED  = ^uint32(EXT3_FEATURE_INCOMPAT_SUPP)
	EXT3_FEATURE_RO_COMPAT_UNSUPPORTED = ^uint32(EXT3_FEATURE_RO_COMPAT_SUPP)

	EXT4_FEATURE_INCOMPAT_64BIT          = 0x0080
	EXT4_FEATURE_RO_COMPAT_METADATA_CSUM = 0x0400
)

var extfsMagic = magic.Magic{
	Offset: sbOffset + 0x38,
	Value:  []byte("\123\357"),
}

type probeCommon struct{}

// Magic returns the magic value for the filesystem.
func (p *probeCommon) Magic() []*magic.Magic {
	return []*magic.Magic{&extfsMagic}
}

// Usage implements probe.Prober.
func (p *probeCommon) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// readSuperblock returns the superblock and whether its checksum (if any) is valid.
func (p *probeCommon) readSuperblock(r probe.Reader) (*SuperBlock, bool, error) {
	buf, err := ioutil.ReadAt(r, sbOffset, superBlockSize)
	if err != nil {
		return nil, false, err
	}

	var sb SuperBlock

	if err = utils.UnpackLE(buf, &sb); err != nil {
		return nil, false, err
	}

	if sb.FeatureROCompat&EXT4_FEATURE_RO_COMPAT_METADATA_CSUM > 0 {
		csum := utils.CRC32c(buf[:superBlockSize-4])

		if csum != binary.LittleEndian.Uint32(buf[superBlockSize-4:]) {
			return &sb, false, nil
		}
	}

	return &sb, true, nil
}

func (p *probeCommon) buildResult(sb *SuperBlock, csumOK bool) (*probe.Result, error) {
	id, err := uuid.FromBytes(sb.UUID[:])
	if err != nil {
		return nil, err
	}

	res := &probe.Result{
		UUID:    id.String(),
		UUIDRaw: sb.UUID[:],
		Version: fmt.Sprintf("%d.%d", sb.RevLevel, sb.MinorRevLevel),

		BlockSize:           sb.BlockSize(),
		FilesystemBlockSize: sb.BlockSize(),
		ProbedSize:          sb.FilesystemSize(),

		BadChecksum: !csumOK,
	}

	if lbl := utils.CString(sb.VolumeName[:]); len(lbl) > 0 {
		res.Label = pointer.To(string(lbl))
		res.LabelRaw = sb.VolumeName[:]
	}

	return res, nil
}
