// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package blkid

import (
	"fmt"
	"os"

	"github.com/siderolabs/go-blkid/block"
)

const openFlags = 0

func isWritable(*os.File) bool {
	return false
}

func adviseRandom(*os.File) {}

func inspectBlockDevice(*block.Device) (deviceInfo, error) {
	return deviceInfo{}, fmt.Errorf("%w: block devices are supported only on Linux", ErrUnsupported)
}

func (p *Probe) lock() (func(), error) {
	return func() {}, nil
}

func (p *Probe) zeroRange(offset, length uint64) error {
	if _, err := p.f.WriteAt(make([]byte, length), int64(offset)); err != nil {
		return err
	}

	return p.f.Sync()
}

func (p *Probe) deviceTopology() (Topology, error) {
	return p.regularFileTopology(), nil
}
