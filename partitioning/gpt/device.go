// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"fmt"
	"io"
	"os"

	"github.com/siderolabs/go-blkid/block"
)

// Device is the storage the partition table is written to.
//
// Block devices keep the kernel partition list in sync with the table,
// for disk images the kernel methods are no-ops.
type Device interface {
	io.ReaderAt
	io.WriterAt

	GetSectorSize() uint
	GetSize() uint64
	GetIOSize() (uint, error)
	Sync() error

	GetKernelLastPartitionNum() (int, error)
	KernelPartitionAdd(no int, start, length uint64) error
	KernelPartitionResize(no int, start, length uint64) error
	KernelPartitionDelete(no int) error
}

type blockDevice struct {
	*block.Device

	f    *os.File
	size uint64
}

func (dev *blockDevice) ReadAt(p []byte, off int64) (int, error) {
	return dev.f.ReadAt(p, off)
}

func (dev *blockDevice) WriteAt(p []byte, off int64) (int, error) {
	return dev.f.WriteAt(p, off)
}

func (dev *blockDevice) GetSize() uint64 {
	return dev.size
}

func (dev *blockDevice) Sync() error {
	return dev.f.Sync()
}

// DeviceFromBlockDevice wraps an open block device.
//
// The device should be opened for writing and locked by the caller.
func DeviceFromBlockDevice(dev *block.Device) (Device, error) {
	size, err := dev.GetSize()
	if err != nil {
		return nil, fmt.Errorf("failed to get device size: %w", err)
	}

	return &blockDevice{
		Device: dev,
		f:      dev.File(),
		size:   size,
	}, nil
}

type imageDevice struct {
	*os.File

	size       uint64
	sectorSize uint
}

func (image *imageDevice) GetSize() uint64 {
	return image.size
}

func (image *imageDevice) GetSectorSize() uint {
	return image.sectorSize
}

func (image *imageDevice) GetIOSize() (uint, error) {
	return image.sectorSize, nil
}

func (image *imageDevice) GetKernelLastPartitionNum() (int, error) {
	return 0, nil
}

func (image *imageDevice) KernelPartitionAdd(int, uint64, uint64) error {
	return nil
}

func (image *imageDevice) KernelPartitionResize(int, uint64, uint64) error {
	return nil
}

func (image *imageDevice) KernelPartitionDelete(int) error {
	return nil
}

// DeviceFromImage wraps a disk image file.
//
// Zero sectorSize means block.DefaultBlockSize.
func DeviceFromImage(f *os.File, sectorSize uint) (Device, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", f.Name())
	}

	if sectorSize == 0 {
		sectorSize = block.DefaultBlockSize
	}

	return &imageDevice{
		File:       f,
		size:       uint64(st.Size()),
		sectorSize: sectorSize,
	}, nil
}
