// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lvm2 probes LVM2 PVs.
package lvm2

import (
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

var (
	lvmMagic1 = magic.Magic{
		Offset: 0x018,
		Value:  []byte("LVM2 001"),
	}

	lvmMagic2 = magic.Magic{
		Offset: 0x218,
		Value:  []byte("LVM2 001"),
	}
)

// LabelHeader is the LVM2 physical volume label (little-endian).
type LabelHeader struct {
	ID       [8]byte
	SectorXL uint64
	CRCXL    uint32
	OffsetXL uint32
	Type     [8]byte
	PVUUID   [32]byte
}

const labelHeaderSize = 0x40

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{
		&lvmMagic1,
		&lvmMagic2,
	}
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "LVM2_member"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageRAID
}

func (p *Probe) probe(r probe.Reader, offset int64) (*LabelHeader, error) {
	buf, err := ioutil.ReadAt(r, offset, labelHeaderSize)
	if err != nil {
		return nil, err
	}

	var hdr LabelHeader

	if err = utils.UnpackLE(buf, &hdr); err != nil {
		return nil, err
	}

	if string(hdr.ID[:]) != "LABELONE" || string(hdr.Type[:]) != "LVM2 001" {
		return nil, nil //nolint:nilnil
	}

	return &hdr, nil
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, m magic.Magic) (*probe.Result, error) {
	hdr, err := p.probe(r, int64(m.Offset-0x18))
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		return nil, nil //nolint:nilnil
	}

	// LVM2 UUIDs aren't 16 bytes, format them the way LVM tools do
	pvUUID := string(hdr.PVUUID[:])
	pvUUID = pvUUID[:6] + "-" + pvUUID[6:10] + "-" + pvUUID[10:14] +
		"-" + pvUUID[14:18] + "-" + pvUUID[18:22] +
		"-" + pvUUID[22:26] + "-" + pvUUID[26:]

	return &probe.Result{
		UUID:    pvUUID,
		UUIDRaw: hdr.PVUUID[:],
		Version: string(hdr.Type[:]),
	}, nil
}
