// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package squashfs probes Squash filesystems.
package squashfs

import (
	"fmt"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

var squashfsMagic1 = magic.Magic{ // big endian
	Offset: 0,
	Value:  []byte("sqsh"),
}

var squashfsMagic2 = magic.Magic{ // little endian
	Offset: 0,
	Value:  []byte("hsqs"),
}

// SuperBlock is the squashfs 4.x superblock.
type SuperBlock struct {
	Magic        uint32
	Inodes       uint32
	MkfsTime     uint32
	BlockSize    uint32
	Fragments    uint32
	Compression  uint16
	BlockLog     uint16
	Flags        uint16
	NoIDs        uint16
	VersionMajor uint16
	VersionMinor uint16
	RootInode    uint64
	BytesUsed    uint64
}

const superBlockSize = 0x30

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{
		&squashfsMagic1,
		&squashfsMagic2,
	}
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "squashfs"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	buf, err := ioutil.ReadAt(r, 0, superBlockSize)
	if err != nil {
		return nil, err
	}

	var sb SuperBlock

	if err = utils.UnpackLE(buf, &sb); err != nil {
		return nil, err
	}

	if sb.VersionMajor < 4 {
		return nil, nil //nolint:nilnil
	}

	return &probe.Result{
		Version: fmt.Sprintf("%d.%d", sb.VersionMajor, sb.VersionMinor),

		BlockSize:           sb.BlockSize,
		FilesystemBlockSize: sb.BlockSize,
		ProbedSize:          sb.BytesUsed,
	}, nil
}
