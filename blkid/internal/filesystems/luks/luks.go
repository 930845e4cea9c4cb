// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package luks probes LUKS encrypted volumes.
package luks

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

var luksMagic = magic.Magic{
	Offset: 0,
	Value:  []byte("LUKS\xba\xbe"),
}

// Header is the common part of the LUKS1 and LUKS2 binary headers (big-endian).
//
// Both versions keep the UUID at the same offset, LUKS2 stores a label
// in place of the LUKS1 cipher name.
type Header struct {
	Magic   [6]byte
	Version uint16
	HdrSize uint64   // LUKS2 only
	SeqID   uint64   // LUKS2 only
	Label   [48]byte // LUKS2 only
	CsumAlg [32]byte
	Salt    [64]byte
	UUID    [40]byte
}

const headerSize = 0xd0

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&luksMagic}
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "crypto_LUKS"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageCrypto
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	buf, err := ioutil.ReadAt(r, 0, headerSize)
	if err != nil {
		return nil, err
	}

	var hdr Header

	if err = utils.UnpackBE(buf, &hdr); err != nil {
		return nil, err
	}

	if hdr.Version != 1 && hdr.Version != 2 {
		return nil, nil //nolint:nilnil
	}

	res := &probe.Result{
		Version: strconv.Itoa(int(hdr.Version)),
	}

	if hdr.Version == 2 {
		if lbl := utils.CString(hdr.Label[:]); len(lbl) > 0 {
			res.Label = pointer.To(string(lbl))
			res.LabelRaw = hdr.Label[:]
		}
	}

	if uuidStr := utils.CString(hdr.UUID[:]); len(uuidStr) > 0 {
		if id, err := uuid.ParseBytes(uuidStr); err == nil {
			res.UUID = id.String()
		} else {
			res.UUID = string(uuidStr)
		}

		res.UUIDRaw = uuidStr
	}

	return res, nil
}
