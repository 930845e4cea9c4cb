// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// Options is the options for the device cache.
type Options struct {
	// Logger to use for logging.
	Logger *zap.Logger
	// SysFSRoot is the sysfs mount point used to enumerate block devices.
	SysFSRoot string
	// DevDir is the directory holding device nodes and /dev/disk/by-* symlinks.
	DevDir string
	// Excludes are glob patterns of device names skipped by ScanAll.
	Excludes []string
	// VerifyInterval is the minimum time between two probes of the same device.
	VerifyInterval time.Duration
}

// Option is an option for the device cache.
type Option func(*Options)

// WithLogger sets the logger for the cache.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithSysFSRoot overrides the sysfs mount point.
func WithSysFSRoot(root string) Option {
	return func(o *Options) {
		o.SysFSRoot = root
	}
}

// WithDevDir overrides the device directory.
func WithDevDir(dir string) Option {
	return func(o *Options) {
		o.DevDir = dir
	}
}

// WithExcludes replaces the default scan exclude patterns.
func WithExcludes(patterns ...string) Option {
	return func(o *Options) {
		o.Excludes = patterns
	}
}

// WithVerifyInterval sets the minimum time between two probes of the same device.
//
// Zero interval probes the device on every verification.
func WithVerifyInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.VerifyInterval = interval
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Logger:         zap.NewNop(),
		SysFSRoot:      sysfs.DefaultRoot,
		DevDir:         "/dev",
		Excludes:       []string{"ram*", "zram*"},
		VerifyInterval: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
