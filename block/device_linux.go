// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NewFromPath returns a new Device from the specified path.
func NewFromPath(path string, opts ...Option) (*Device, error) {
	options := applyOptions(opts...)

	f, err := os.OpenFile(path, options.Flag|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	return &Device{
		f:         f,
		sysfs:     options.SysFS,
		ownedFile: true,
	}, nil
}

func (d *Device) clone() *Device {
	return &Device{
		f:         d.f,
		sysfs:     d.sysfs,
		ownedFile: false,
		devNo:     d.devNo,
	}
}

func (d *Device) ioctlUint(req uint) (uint, error) {
	var value uint

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(req), uintptr(unsafe.Pointer(&value))); errno != 0 {
		return 0, errno
	}

	return value, nil
}

// GetSize returns blockdevice size in bytes.
//
// For regular files (disk images) the file size is returned.
func (d *Device) GetSize() (uint64, error) {
	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		if st, err := d.f.Stat(); errno == unix.ENOTTY && err == nil && st.Mode().IsRegular() {
			return uint64(st.Size()), nil
		}

		return 0, errno
	}

	return devsize, nil
}

// GetIOSize returns blockdevice optimal I/O size in bytes.
func (d *Device) GetIOSize() (uint, error) {
	for _, ioctl := range []uint{unix.BLKIOOPT, unix.BLKIOMIN, unix.BLKBSZGET} {
		size, err := d.ioctlUint(ioctl)
		if err != nil {
			continue
		}

		if size > 0 && size&(size-1) == 0 {
			return size, nil
		}
	}

	return DefaultBlockSize, nil
}

// GetSectorSize returns blockdevice sector size in bytes.
func (d *Device) GetSectorSize() uint {
	// BLKSSZGET returns an int
	var size int32

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKSSZGET), uintptr(unsafe.Pointer(&size))); errno != 0 || size <= 0 {
		return DefaultBlockSize
	}

	return uint(size)
}

// GetTopology returns I/O limits of the device.
func (d *Device) GetTopology() (Topology, error) {
	var (
		topology Topology
		intValue int32
	)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKALIGNOFF), uintptr(unsafe.Pointer(&intValue))); errno != 0 {
		return topology, errno
	}

	if intValue > 0 {
		topology.AlignmentOffset = uint64(intValue)
	}

	for _, item := range []struct {
		req   uint
		value *uint64
	}{
		{unix.BLKIOMIN, &topology.MinimumIOSize},
		{unix.BLKIOOPT, &topology.OptimalIOSize},
		{unix.BLKPBSZGET, &topology.PhysicalSectorSize},
	} {
		// these ioctls return an unsigned int
		var value uint32

		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(item.req), uintptr(unsafe.Pointer(&value))); errno != 0 {
			return topology, errno
		}

		*item.value = uint64(value)
	}

	topology.LogicalSectorSize = uint64(d.GetSectorSize())

	if devNo, err := d.GetDevNo(); err == nil {
		if dax, err := d.sysfs.ReadUint(devNo, filepath.Join("queue", "dax")); err == nil {
			topology.DAX = dax != 0
		}
	}

	return topology, nil
}

// IsCD returns true if the blockdevice is a CD-ROM device.
func (d *Device) IsCD() bool {
	const CDROM_GET_CAPABILITY = 0x5331 //nolint:revive,stylecheck

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(CDROM_GET_CAPABILITY), 0); errno != 0 {
		return false
	}

	return true
}

// IsCDNoMedia returns true if the blockdevice is a CD-ROM device without media.
func (d *Device) IsCDNoMedia() bool {
	const CDROM_DRIVE_STATUS = 0x5326 //nolint:revive,stylecheck

	arg, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(CDROM_DRIVE_STATUS), 0)

	return errno == 0 && (arg == 1 || arg == 2)
}

// GetDevNo returns the device number of the blockdevice.
func (d *Device) GetDevNo() (uint64, error) {
	if d.devNo != 0 {
		return d.devNo, nil
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(d.f.Fd()), &st); err != nil {
		return 0, err
	}

	d.devNo = st.Rdev

	return d.devNo, nil
}

// IsReadOnly returns true if the blockdevice is read-only.
func (d *Device) IsReadOnly() (bool, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return false, err
	}

	ro, err := d.sysfs.ReadAttr(devNo, "ro")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if len(ro) > 0 {
		return ro[0] == '1', nil
	}

	var flags int
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKROGET, uintptr(unsafe.Pointer(&flags))); errno != 0 {
		return false, errno
	}

	return flags != 0, nil
}

// IsWholeDisk returns true if the blockdevice is a whole disk.
func (d *Device) IsWholeDisk() (bool, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return false, err
	}

	return !d.sysfs.IsPartition(devNo) && !d.sysfs.IsDMPartition(devNo), nil
}

// GetWholeDiskDevNo returns the device number of the whole disk for the blockdevice.
func (d *Device) GetWholeDiskDevNo() (uint64, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return 0, err
	}

	return d.sysfs.WholeDisk(devNo)
}

// GetWholeDisk returns the whole disk for the blockdevice.
//
// If the blockdevice is a whole disk, it returns itself.
// The returned block device should be closed.
func (d *Device) GetWholeDisk() (*Device, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return nil, err
	}

	wholeDevNo, err := d.sysfs.WholeDisk(devNo)
	if err != nil {
		return nil, err
	}

	if wholeDevNo == devNo {
		return d.clone(), nil
	}

	name, err := d.sysfs.DeviceName(wholeDevNo)
	if err != nil {
		return nil, err
	}

	return NewFromPath(filepath.Join("/dev", name), WithSysFS(d.sysfs))
}

// IsPrivateDeviceMapper returns true if this is a private device-mapper device.
func (d *Device) IsPrivateDeviceMapper() (bool, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return false, err
	}

	// check for pattern "LVM-<uuid>-name"
	prefix, rest, ok := strings.Cut(d.sysfs.DMUUID(devNo), "-")
	if !ok || prefix != "LVM" {
		return false, nil
	}

	_, _, ok = strings.Cut(rest, "-")

	return ok, nil
}

// Sync flushes the device buffers.
func (d *Device) Sync() error {
	return d.f.Sync()
}

// Lock (and block until the lock is acquired) for the block device.
func (d *Device) Lock(exclusive bool) error {
	return d.lock(exclusive, 0)
}

// TryLock (and return an error if failed).
func (d *Device) TryLock(exclusive bool) error {
	return d.lock(exclusive, unix.LOCK_NB)
}

// Unlock releases any lock.
func (d *Device) Unlock() error {
	for {
		if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (d *Device) lock(exclusive bool, flag int) error {
	if exclusive {
		flag |= unix.LOCK_EX
	} else {
		flag |= unix.LOCK_SH
	}

	for {
		if err := unix.Flock(int(d.f.Fd()), flag); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
