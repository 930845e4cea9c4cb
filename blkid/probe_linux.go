// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-blkid/block"
)

const openFlags = unix.O_NONBLOCK

func isWritable(f *os.File) bool {
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)

	return err == nil && flags&unix.O_ACCMODE != unix.O_RDONLY
}

func adviseRandom(f *os.File) {
	unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM) //nolint:errcheck // best-effort: we don't care if this fails
}

func inspectBlockDevice(dev *block.Device) (deviceInfo, error) {
	info := deviceInfo{
		isBlock:    true,
		sectorSize: dev.GetSectorSize(),
	}

	var err error

	if info.size, err = dev.GetSize(); err != nil {
		return info, ioError("failed to get block device size", err)
	}

	if info.devNo, err = dev.GetDevNo(); err != nil {
		return info, ioError("failed to get device number", err)
	}

	if info.wholeDisk, err = dev.IsWholeDisk(); err != nil {
		return info, ioError("failed to check if block device is whole disk", err)
	}

	if info.wholeDevNo, err = dev.GetWholeDiskDevNo(); err != nil {
		if !info.wholeDisk {
			return info, ioError("failed to get whole disk", err)
		}

		// no sysfs entry, the device is its own whole disk
		info.wholeDevNo = info.devNo
	}

	if private, err := dev.IsPrivateDeviceMapper(); private && err == nil {
		// don't probe device-mapper devices
		info.skip = "private device-mapper device"
	}

	if info.wholeDisk && dev.IsCD() && dev.IsCDNoMedia() {
		// don't probe CD-ROM devices without media
		info.skip = "CD-ROM device without media"
	}

	return info, nil
}

// lock the whole disk in shared mode, so that partitioning tools don't modify it while probing.
func (p *Probe) lock() (func(), error) {
	if p.options.SkipLocking || !p.device.isBlock {
		return func() {}, nil
	}

	if p.disk == nil {
		disk, err := p.dev.GetWholeDisk()
		if err != nil {
			return nil, ioError("failed to get whole disk", err)
		}

		p.disk = disk
	}

	if err := p.disk.TryLock(false); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrFailedLock
		}

		return nil, ioError("failed to lock whole disk", err)
	}

	return func() {
		p.disk.Unlock() //nolint:errcheck
	}, nil
}

func (p *Probe) zeroRange(offset, length uint64) error {
	if err := p.dev.ZeroRange(offset, length); err != nil {
		return err
	}

	return p.dev.Sync()
}

func (p *Probe) deviceTopology() (Topology, error) {
	if !p.device.isBlock {
		return p.regularFileTopology(), nil
	}

	topology, err := p.dev.GetTopology()
	if err != nil {
		return Topology{}, ioError("failed to get topology", err)
	}

	return Topology{
		AlignmentOffset:    topology.AlignmentOffset,
		MinimumIOSize:      topology.MinimumIOSize,
		OptimalIOSize:      topology.OptimalIOSize,
		LogicalSectorSize:  topology.LogicalSectorSize,
		PhysicalSectorSize: topology.PhysicalSectorSize,
		DAX:                topology.DAX,
	}, nil
}
