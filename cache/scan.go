// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ryanuber/go-glob"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

// ScanAll probes all block devices of the system and refreshes their entries.
//
// Removable media is skipped unless includeRemovable is set, as probing it might block.
// Devices failing to probe are skipped.
func (c *Cache) ScanAll(includeRemovable bool) error {
	names, err := c.sysfs.BlockDevices()
	if err != nil {
		return fmt.Errorf("%w: failed to list block devices: %w", blkid.ErrIO, err)
	}

	for _, name := range names {
		logger := c.logger.With(zap.String("device", name))

		if reason := c.skipReason(name, includeRemovable); reason != "" {
			logger.Debug("skipping device", zap.String("reason", reason))

			continue
		}

		d, err := c.probe(filepath.Join(c.options.DevDir, name))
		if err != nil {
			logger.Debug("failed to probe device", zap.Error(err))

			continue
		}

		if d.devNo == 0 {
			if devNo, err := c.sysfs.DevNo(name); err == nil {
				d.devNo = devNo
			}
		}

		c.set(d)
	}

	return nil
}

func (c *Cache) skipReason(name string, includeRemovable bool) string {
	for _, pattern := range c.options.Excludes {
		if glob.Glob(pattern, name) {
			return "excluded by " + pattern
		}
	}

	size, err := c.sysfs.ReadClassUint(name, "size")
	if err != nil {
		return "unknown size"
	}

	if size == 0 {
		return "zero size"
	}

	if !includeRemovable && c.sysfs.IsRemovable(name) {
		return "removable"
	}

	return ""
}

// GarbageCollect removes entries of devices which no longer exist.
//
// Entries which can't be checked for other reasons are kept.
// The number of removed entries is returned.
func (c *Cache) GarbageCollect() int {
	var removed int

	for _, d := range c.snapshot() {
		_, err := os.Stat(d.name)
		if err == nil {
			continue
		}

		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("keeping device which can't be checked", zap.String("device", d.name), zap.Error(err))

			continue
		}

		c.logger.Debug("removing stale device", zap.String("device", d.name))
		c.remove(d.name)

		removed++
	}

	return removed
}

// verify refreshes the entry if it is older than the verify interval.
//
// Entries of devices which no longer exist are kept until GarbageCollect.
func (c *Cache) verify(d *Device) (*Device, error) {
	if !d.verified.IsZero() && time.Since(d.verified) < c.options.VerifyInterval {
		return d, nil
	}

	fresh, err := c.probe(d.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("device no longer exists", zap.String("device", d.name))

			return nil, fmt.Errorf("%w: device %s", blkid.ErrNotFound, d.name)
		}

		return nil, err
	}

	if fresh.devNo == 0 {
		fresh.devNo = d.devNo
	}

	c.set(fresh)

	return fresh, nil
}

// probe builds a new entry for the device.
func (c *Cache) probe(path string) (*Device, error) {
	p, err := blkid.NewFromPath(path,
		blkid.WithProbeLogger(c.logger),
		blkid.WithSysFSRoot(c.options.SysFSRoot),
	)
	if err != nil {
		return nil, err
	}

	defer p.Close() //nolint:errcheck

	if err = p.EnableChain(blkid.ChainPartitions, true); err != nil {
		return nil, err
	}

	p.SetPartitionsFlags(blkid.PartitionEntryDetails)

	outcome, err := p.ProbeSafe()
	if err != nil {
		return nil, err
	}

	d := newDevice(path)
	d.devNo = p.DevNo()
	d.verified = time.Now()

	if outcome == blkid.OutcomeMatch {
		for name, value := range p.Values().All() {
			if name, ok := cachedTagName(name); ok {
				d.tags.Set(name, value)
			}
		}
	}

	c.logger.Debug("device probed", zap.String("device", path), zap.Int("tags", d.tags.Len()))

	return d, nil
}

// cachedTagName maps probe values to cache tags.
//
// Partition entry details other than the name and the UUID are not cached.
func cachedTagName(name string) (string, bool) {
	switch name {
	case "PART_ENTRY_UUID":
		return "PARTUUID", true
	case "PART_ENTRY_NAME":
		return "PARTLABEL", true
	}

	return name, !strings.HasPrefix(name, "PART_ENTRY_")
}
