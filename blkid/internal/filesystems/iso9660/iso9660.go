// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package iso9660 probes ISO9660 filesystems.
package iso9660

import (
	"encoding/binary"
	"strings"

	"github.com/siderolabs/go-pointer"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const (
	superblockOffset = 0x8000
)

var isoMagic = magic.Magic{
	Offset: superblockOffset + 1,
	Value:  []byte("CD001"),
}

// VolumeDescriptor is the leading part of an ISO9660 volume descriptor.
//
// Both-endian fields are kept raw.
type VolumeDescriptor struct {
	Type             uint8
	ID               [5]byte
	Version          uint8
	Flags            uint8
	SystemID         [32]byte
	VolumeID         [32]byte
	Unused           [8]byte
	SpaceSize        [8]byte
	EscapeSequences  [32]byte
	SetSize          [4]byte
	VolSeqNum        [4]byte
	LogicalBlockSize [4]byte
}

const volumeDescriptorSize = 0x84

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&isoMagic}
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "iso9660"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

const (
	vdMax           = 16
	vdEnd           = 0xff
	vdBootRecord    = 0
	vdPrimary       = 1
	vdSupplementary = 2

	sectorSize = 2048
)

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	var pvd, joliet *VolumeDescriptor

vdLoop:
	for i := range vdMax {
		buf, err := ioutil.ReadAt(r, superblockOffset+sectorSize*int64(i), volumeDescriptorSize)
		if err != nil {
			break
		}

		var vd VolumeDescriptor

		if err = utils.UnpackLE(buf, &vd); err != nil {
			return nil, err
		}

		switch vd.Type {
		case vdEnd:
			break vdLoop
		case vdBootRecord:
			// skip
		case vdPrimary:
			pvd = &vd
		case vdSupplementary:
			joliet = &vd
		}

		if pvd != nil && joliet != nil {
			break
		}
	}

	if pvd == nil {
		return nil, nil //nolint:nilnil
	}

	logicalBlockSize := binary.LittleEndian.Uint16(pvd.LogicalBlockSize[:2])
	spaceSize := binary.LittleEndian.Uint32(pvd.SpaceSize[:4])

	res := &probe.Result{
		BlockSize:           uint32(logicalBlockSize),
		FilesystemBlockSize: uint32(logicalBlockSize),
		ProbedSize:          uint64(spaceSize) * uint64(logicalBlockSize),
	}

	if joliet != nil {
		if label, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(joliet.VolumeID[:]); err == nil {
			res.Label = pointer.To(strings.TrimRight(string(label), " "))
			res.LabelRaw = joliet.VolumeID[:]
		}
	}

	if res.Label == nil {
		res.Label = pointer.To(strings.TrimRight(string(pvd.VolumeID[:]), " "))
		res.LabelRaw = pvd.VolumeID[:]
	}

	return res, nil
}
