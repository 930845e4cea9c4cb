// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"io"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// FastWipeRange is the length zeroed at both ends of the device by FastWipe.
	FastWipeRange = 1024 * 1024

	// ranges passed to discard and zeroout ioctls should be aligned to this
	wipeAlignment = 2048

	// longer ranges are zeroed by copying from /dev/zero
	zeroBufferThreshold = 64 * 1024
)

// Wipe methods reported by WipeRange.
const (
	WipeSecureDiscard = "blksecdiscard"
	WipeDiscardZeroes = "blkdiscardzeros"
	WipeZeroOut       = "blkzeroout"
	WipeWriteZeroes   = "writezeroes"
)

// Wipe zeroes the whole device, see WipeRange.
func (d *Device) Wipe() (string, error) {
	size, err := d.GetSize()
	if err != nil {
		return "", err
	}

	return d.WipeRange(0, size)
}

// FastWipe discards the device and zeroes FastWipeRange bytes at its start and end.
//
// Partition tables and most signatures are gone after that, but
// the rest of the device might still contain the old data.
func (d *Device) FastWipe() error {
	size, err := d.GetSize()
	if err != nil {
		return err
	}

	// discard might not be supported, and it doesn't guarantee zeroes anyways
	d.rangeIoctl(unix.BLKDISCARD, 0, size) //nolint:errcheck

	if _, err = d.WipeRange(0, min(size, FastWipeRange)); err != nil {
		return err
	}

	if size < 2*FastWipeRange {
		return nil
	}

	_, err = d.WipeRange(size-FastWipeRange, FastWipeRange)

	return err
}

// WipeRange zeroes [start, start+length) and returns the method used.
//
// Aligned ranges try secure discard, then discard if the device guarantees zeroes after it,
// then BLKZEROOUT. Anything else is zeroed from userland.
func (d *Device) WipeRange(start, length uint64) (string, error) {
	if start%wipeAlignment != 0 || length%wipeAlignment != 0 {
		return WipeWriteZeroes, d.ZeroRange(start, length)
	}

	if d.rangeIoctl(unix.BLKSECDISCARD, start, length) == nil {
		return WipeSecureDiscard, nil
	}

	if d.discardZeroes() && d.rangeIoctl(unix.BLKDISCARD, start, length) == nil {
		return WipeDiscardZeroes, nil
	}

	if d.rangeIoctl(unix.BLKZEROOUT, start, length) == nil {
		return WipeZeroOut, nil
	}

	return WipeWriteZeroes, d.ZeroRange(start, length)
}

func (d *Device) rangeIoctl(req uintptr, start, length uint64) error {
	r := [2]uint64{start, length}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(unsafe.Pointer(&r[0])))

	runtime.KeepAlive(d)

	if errno != 0 {
		return errno
	}

	return nil
}

func (d *Device) discardZeroes() bool {
	var zeroes uint32

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKDISCARDZEROES, uintptr(unsafe.Pointer(&zeroes)))

	return errno == 0 && zeroes != 0
}

// ZeroRange writes zeroes to [start, start+length), it works for regular files too.
func (d *Device) ZeroRange(start, length uint64) error {
	if length < zeroBufferThreshold {
		_, err := d.f.WriteAt(make([]byte, length), int64(start))

		return err
	}

	zero, err := os.Open("/dev/zero")
	if err != nil {
		return err
	}

	defer zero.Close() //nolint:errcheck

	_, err = io.Copy(io.NewOffsetWriter(d.f, int64(start)), io.LimitReader(zero, int64(length)))

	return err
}
