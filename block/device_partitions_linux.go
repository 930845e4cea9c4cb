// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// KernelPartitionAdd tells the kernel about a new partition, start and length are in bytes.
func (d *Device) KernelPartitionAdd(no int, start, length uint64) error {
	return d.blkpg(unix.BLKPG_ADD_PARTITION, unix.BlkpgPartition{Pno: int32(no), Start: int64(start), Length: int64(length)})
}

// KernelPartitionResize changes the kernel view of the partition size.
//
// The start of the partition can't be changed while it is in use.
func (d *Device) KernelPartitionResize(no int, start, length uint64) error {
	return d.blkpg(unix.BLKPG_RESIZE_PARTITION, unix.BlkpgPartition{Pno: int32(no), Start: int64(start), Length: int64(length)})
}

// KernelPartitionDelete removes the partition from the kernel.
//
// ENXIO is returned for partitions unknown to the kernel, EBUSY for partitions in use.
func (d *Device) KernelPartitionDelete(no int) error {
	return d.blkpg(unix.BLKPG_DEL_PARTITION, unix.BlkpgPartition{Pno: int32(no)})
}

func (d *Device) blkpg(op int32, part unix.BlkpgPartition) error {
	arg := unix.BlkpgIoctlArg{
		Op:      op,
		Datalen: int32(unsafe.Sizeof(part)),
		Data:    (*byte)(unsafe.Pointer(&part)),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKPG, uintptr(unsafe.Pointer(&arg)))

	runtime.KeepAlive(d)

	if errno != 0 {
		return fmt.Errorf("BLKPG partition %d: %w", part.Pno, errno)
	}

	return nil
}

// GetKernelLastPartitionNum returns the highest partition number known to the kernel, zero if there are none.
func (d *Device) GetKernelLastPartitionNum() (int, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return 0, err
	}

	partitions, err := d.sysfs.Partitions(devNo)
	if err != nil {
		return 0, err
	}

	if len(partitions) == 0 {
		return 0, nil
	}

	return partitions[len(partitions)-1], nil
}
