// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configure the partition table.
type Options struct {
	Logger *zap.Logger

	// DiskGUID is used by New, random GUID is generated if not set.
	DiskGUID uuid.UUID

	SkipPMBR         bool
	MarkPMBRBootable bool
}

// Option sets some Options field.
type Option func(*Options)

// WithLogger sets the logger for table writes.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDiskGUID sets the disk GUID.
func WithDiskGUID(guid uuid.UUID) Option {
	return func(o *Options) {
		o.DiskGUID = guid
	}
}

// WithSkipPMBR leaves the first sector untouched.
func WithSkipPMBR() Option {
	return func(o *Options) {
		o.SkipPMBR = true
	}
}

// WithMarkPMBRBootable sets the boot indicator on the protective MBR entry.
//
// Some legacy BIOSes refuse to boot from a disk without a bootable MBR partition.
func WithMarkPMBRBootable() Option {
	return func(o *Options) {
		o.MarkPMBRBootable = true
	}
}

func applyOptions(opts ...Option) Options {
	options := Options{
		Logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	return options
}

// Partition attribute bits.
const (
	AttributeRequired       = 1 << 0
	AttributeNoBlockIOProto = 1 << 1
	AttributeLegacyBIOSBoot = 1 << 2
)

// PartitionOptions configure a new partition.
type PartitionOptions struct {
	UniqueGUID uuid.UUID
	Flags      uint64
}

// PartitionOption sets some PartitionOptions field.
type PartitionOption func(*PartitionOptions)

// WithUniqueGUID sets the partition GUID, random GUID is generated if not set.
func WithUniqueGUID(guid uuid.UUID) PartitionOption {
	return func(o *PartitionOptions) {
		o.UniqueGUID = guid
	}
}

// WithLegacyBIOSBootableAttribute sets the legacy BIOS bootable attribute.
func WithLegacyBIOSBootableAttribute(val bool) PartitionOption {
	return func(o *PartitionOptions) {
		if val {
			o.Flags |= AttributeLegacyBIOSBoot
		} else {
			o.Flags &^= AttributeLegacyBIOSBoot
		}
	}
}

// WithAttributes sets raw attribute bits.
func WithAttributes(flags uint64) PartitionOption {
	return func(o *PartitionOptions) {
		o.Flags |= flags
	}
}
