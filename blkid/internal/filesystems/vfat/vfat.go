// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package vfat probes FAT12/FAT16/FAT32 filesystems.
package vfat

import (
	"fmt"
	"strings"

	"github.com/siderolabs/go-pointer"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/utils"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

var (
	fatMagic1 = magic.Magic{
		Offset: 0x52,
		Value:  []byte("MSWIN"),
	}

	fatMagic2 = magic.Magic{
		Offset: 0x52,
		Value:  []byte("FAT32   "),
	}

	fatMagic3 = magic.Magic{
		Offset: 0x36,
		Value:  []byte("MSDOS"),
	}

	fatMagic4 = magic.Magic{
		Offset: 0x36,
		Value:  []byte("FAT16   "),
	}

	fatMagic5 = magic.Magic{
		Offset: 0x36,
		Value:  []byte("FAT12   "),
	}

	fatMagic6 = magic.Magic{
		Offset: 0x36,
		Value:  []byte("FAT     "),
	}

	fatMagics = []*magic.Magic{
		&fatMagic1,
		&fatMagic2,
		&fatMagic3,
		&fatMagic4,
		&fatMagic5,
		&fatMagic6,
	}
)

// Probe for the filesystem.
type Probe struct{}

// Magic returns the magic value for the filesystem.
func (p *Probe) Magic() []*magic.Magic {
	return fatMagics
}

// Name returns the name of the filesystem.
func (p *Probe) Name() string {
	return "vfat"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageFilesystem
}

// Probe runs the further inspection and returns the result if successful.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	buf, err := ioutil.ReadAt(r, 0, bootSectorSize)
	if err != nil {
		return nil, err
	}

	bs, err := decode(buf)
	if err != nil {
		return nil, err
	}

	if !bs.isValid() {
		return nil, nil //nolint:nilnil
	}

	sectorSize := uint32(bs.SectorSize)

	res := &probe.Result{
		BlockSize:           sectorSize,
		FilesystemBlockSize: uint32(bs.ClusterSize) * sectorSize,
		ProbedSize:          uint64(bs.sectorCount()) * uint64(sectorSize),
	}

	serno, label := bs.MSDOS.Serno, bs.MSDOS.Label

	switch {
	case bs.isFAT32():
		res.Version = "FAT32"
		serno, label = bs.VFAT.Serno, bs.VFAT.Label
	case bs.clusterCount() < 4085:
		res.Version = "FAT12"
		res.SecType = "msdos"
	default:
		res.Version = "FAT16"
		res.SecType = "msdos"
	}

	if lbl := strings.TrimRight(string(utils.CString(label[:])), " "); lbl != "" && lbl != "NO NAME" {
		res.Label = pointer.To(lbl)
		res.LabelRaw = label[:]
	}

	if !utils.IsZero(serno[:]) {
		res.UUID = fmt.Sprintf("%02X%02X-%02X%02X", serno[3], serno[2], serno[1], serno[0])
		res.UUIDRaw = serno[:]
	}

	return res, nil
}

// IsBootSector returns true if the buffer starts with a valid FAT boot sector.
func IsBootSector(buf []byte) bool {
	if _, ok := magic.Match(fatMagics, buf); !ok {
		return false
	}

	bs, err := decode(buf)
	if err != nil {
		return false
	}

	return bs.isValid()
}
