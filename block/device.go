// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides support for operations on blockdevices.
package block

import (
	"os"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// Device wraps blockdevice operations.
type Device struct {
	f *os.File

	sysfs sysfs.FS

	ownedFile bool
	devNo     uint64
}

// NewFromFile returns a new Device from the specified file.
//
// The file is not closed by Close.
func NewFromFile(f *os.File, opts ...Option) *Device {
	options := applyOptions(opts...)

	return &Device{
		f:     f,
		sysfs: options.SysFS,
	}
}

// File returns the underlying file.
func (d *Device) File() *os.File {
	return d.f
}

// Close the device.
//
// The file is closed only if it was opened by the Device.
func (d *Device) Close() error {
	if !d.ownedFile {
		return nil
	}

	return d.f.Close()
}

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Options for opening block devices.
type Options struct {
	// SysFS is the sysfs tree used to resolve device relationships.
	SysFS sysfs.FS

	// Flag is the open flag (os.O_RDONLY or os.O_RDWR).
	Flag int
}

// Option configures Options.
type Option func(*Options)

// OpenForWrite opens the device read-write.
func OpenForWrite() Option {
	return func(o *Options) {
		o.Flag = os.O_RDWR
	}
}

// WithSysFS overrides the sysfs root.
func WithSysFS(fs sysfs.FS) Option {
	return func(o *Options) {
		o.SysFS = fs
	}
}

func applyOptions(opts ...Option) Options {
	options := Options{
		SysFS: sysfs.Default(),
		Flag:  os.O_RDONLY,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// Topology describes I/O limits of the device.
//
// Zero values mean the value is unknown.
type Topology struct {
	AlignmentOffset    uint64
	MinimumIOSize      uint64
	OptimalIOSize      uint64
	LogicalSectorSize  uint64
	PhysicalSectorSize uint64
	DAX                bool
}
