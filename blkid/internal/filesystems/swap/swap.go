// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package swap probes Linux swapspaces.
package swap

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const (
	headerOffset = 1024
	headerSize   = 44

	magicV0 = "SWAP-SPACE"
	magicV1 = "SWAPSPACE2"
)

// Header is the version 1 swap header following the boot bits.
type Header struct {
	Version    uint32
	LastPage   uint32
	NrBadPages uint32
	UUID       [16]byte
	Volume     [16]byte
}

var swapMagics = func() []*magic.Magic {
	var magics []*magic.Magic

	// the signature is in the last 10 bytes of the first page, for page sizes 4k..64k
	for _, pageSize := range []int{0x1000, 0x2000, 0x4000, 0x8000, 0x10000} {
		for _, value := range []string{magicV0, magicV1} {
			magics = append(magics, &magic.Magic{
				Offset: pageSize - len(value),
				Value:  []byte(value),
			})
		}
	}

	return magics
}()

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return swapMagics
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "swap"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Tolerant implements probe.Tolerant.
//
// mkswap does not wipe the whole device, so stale signatures might be still around.
func (p *Probe) Tolerant() bool {
	return true
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, m magic.Magic) (*probe.Result, error) {
	// https://github.com/util-linux/util-linux/blob/c0207d354ee47fb56acfa64b03b5b559bb301280/libblkid/src/superblocks/swap.c#L47
	pageSize := m.Offset + len(m.Value)

	if string(m.Value) == magicV0 {
		return &probe.Result{
			Version:             "0",
			BlockSize:           uint32(pageSize),
			FilesystemBlockSize: uint32(pageSize),
		}, nil
	}

	buf, err := ioutil.ReadAt(r, headerOffset, headerSize)
	if err != nil {
		return nil, err
	}

	var hdr Header

	if err = utils.UnpackLE(buf, &hdr); err != nil {
		return nil, err
	}

	if hdr.Version != 1 || hdr.LastPage == 0 {
		return nil, nil //nolint:nilnil
	}

	res := &probe.Result{
		Version: fmt.Sprintf("%d", hdr.Version),

		BlockSize:           uint32(pageSize),
		FilesystemBlockSize: uint32(pageSize),
		ProbedSize:          uint64(pageSize) * uint64(hdr.LastPage),
	}

	if lbl := utils.CString(hdr.Volume[:]); len(lbl) > 0 {
		res.Label = pointer.To(string(lbl))
		res.LabelRaw = hdr.Volume[:]
	}

	if !utils.IsZero(hdr.UUID[:]) {
		if fsUUID, err := uuid.FromBytes(hdr.UUID[:]); err == nil {
			res.UUID = fsUUID.String()
			res.UUIDRaw = hdr.UUID[:]
		}
	}

	return res, nil
}
