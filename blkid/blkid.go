// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blkid identifies the contents of block devices and image files:
// filesystem superblocks, partition tables and I/O topology.
package blkid

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// ProbeOptions is the options for probing.
type ProbeOptions struct {
	// Logger to use for logging.
	Logger *zap.Logger
	// SkipLocking blockdevices in shared mode.
	SkipLocking bool
	// Capabilities available to the probe.
	Capabilities Capabilities
	// SysFSRoot is the sysfs mount point used to resolve device relationships.
	SysFSRoot string
}

// ProbeOption is an option for probing.
type ProbeOption func(*ProbeOptions)

// WithProbeLogger sets the logger for the probe.
func WithProbeLogger(logger *zap.Logger) ProbeOption {
	return func(o *ProbeOptions) {
		o.Logger = logger
	}
}

// WithSkipLocking skips locking blockdevices in shared mode.
func WithSkipLocking(skip bool) ProbeOption {
	return func(o *ProbeOptions) {
		o.SkipLocking = skip
	}
}

// WithCapabilities narrows down the capabilities of the probe.
//
// Capabilities not supported by the library are never enabled.
func WithCapabilities(caps Capabilities) ProbeOption {
	return func(o *ProbeOptions) {
		o.Capabilities &= caps
	}
}

// WithSysFSRoot overrides the sysfs mount point.
func WithSysFSRoot(root string) ProbeOption {
	return func(o *ProbeOptions) {
		o.SysFSRoot = root
	}
}

func applyProbeOptions(opts ...ProbeOption) ProbeOptions {
	o := ProbeOptions{
		Logger:       zap.NewNop(),
		Capabilities: SupportedCapabilities(),
		SysFSRoot:    sysfs.DefaultRoot,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
