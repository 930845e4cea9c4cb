// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package talosmeta probes the Talos META partition.
//
// META keeps two 256 KiB copies of its key-value store, each copy is framed
// by a big-endian head magic at its start and a tail magic in its last 4 bytes.
package talosmeta

import (
	"encoding/binary"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/ioutil"
)

const (
	headMagic uint32 = 0x5a4b3c2d
	tailMagic uint32 = 0xa5b4c3d2

	copySize = 256 * 1024
)

var head = magic.Magic{
	Value: binary.BigEndian.AppendUint32(nil, headMagic),
}

// Probe for META.
type Probe struct{}

// Magic returns the head magic of the first copy.
func (p *Probe) Magic() []*magic.Magic {
	return []*magic.Magic{&head}
}

// Name returns the name of the format.
func (p *Probe) Name() string {
	return "talosmeta"
}

// Usage implements probe.Prober.
func (p *Probe) Usage() probe.Usage {
	return probe.UsageOther
}

// Probe accepts the partition if either copy is framed correctly.
func (p *Probe) Probe(r probe.Reader, _ magic.Magic) (*probe.Result, error) {
	if r.GetSize() < 2*copySize {
		return nil, nil //nolint:nilnil
	}

	for _, start := range []int64{0, copySize} {
		ok, err := framed(r, start)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		return &probe.Result{
			Magic:      &magic.Magic{Offset: int(start), Value: head.Value},
			ProbedSize: 2 * copySize,
		}, nil
	}

	return nil, nil //nolint:nilnil
}

func framed(r probe.Reader, start int64) (bool, error) {
	buf := make([]byte, 4)

	for _, check := range []struct {
		offset int64
		value  uint32
	}{
		{start, headMagic},
		{start + copySize - 4, tailMagic},
	} {
		if err := ioutil.ReadFullAt(r, buf, check.offset); err != nil {
			return false, err
		}

		if binary.BigEndian.Uint32(buf) != check.value {
			return false, nil
		}
	}

	return true, nil
}
