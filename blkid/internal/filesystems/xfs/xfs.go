// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package xfs probes XFS filesystems.
package xfs

import (
	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

var xfsMagic = magic.Magic{
	Offset: 0,
	Value:  []byte{0x58, 0x46, 0x53, 0x42},
}

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&xfsMagic}
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "xfs"
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

	if err = utils.UnpackBE(buf, &sb); err != nil {
		return nil, err
	}

	if !sb.Valid() {
		return nil, nil //nolint:nilnil
	}

	id, err := uuid.FromBytes(sb.UUID[:])
	if err != nil {
		return nil, err
	}

	res := &probe.Result{
		UUID:    id.String(),
		UUIDRaw: sb.UUID[:],

		BlockSize:           uint32(sb.SectSize),
		FilesystemBlockSize: sb.BlockSize,
		ProbedSize:          sb.FilesystemSize(),
	}

	if lbl := utils.CString(sb.FName[:]); len(lbl) > 0 {
		res.Label = pointer.To(string(lbl))
		res.LabelRaw = sb.FName[:]
	}

	return res, nil
}
