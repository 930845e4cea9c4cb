// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cache implements a persistent registry of probed block devices.
//
// The cache is loaded from a file when opened, and written back only by an explicit Save.
// A Cache is not safe for concurrent use.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/elliotchance/orderedmap/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// DefaultPath is the cache file location used when neither a path nor BLKID_FILE is set.
const DefaultPath = "/run/blkid/blkid.json"

// PathEnv is the environment variable overriding the default cache file location.
const PathEnv = "BLKID_FILE"

// Cache is a collection of devices keyed by device path.
type Cache struct {
	options Options
	logger  *zap.Logger
	sysfs   sysfs.FS

	devices *orderedmap.OrderedMap[string, *Device]
	path    string
	dirty   bool
}

// Open loads the cache from the file at path.
//
// Empty path means $BLKID_FILE, or DefaultPath if it is not set.
// A missing file results in an empty cache.
func Open(path string, opts ...Option) (*Cache, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	if path == "" {
		path = DefaultPath
	}

	options := applyOptions(opts...)

	c := &Cache{
		options: options,
		logger:  options.Logger.With(zap.String("cache", path)),
		sysfs:   sysfs.FS{Root: options.SysFSRoot},
		devices: orderedmap.NewOrderedMap[string, *Device](),
		path:    path,
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("cache file doesn't exist, starting empty")

			return c, nil
		}

		return nil, fmt.Errorf("%w: failed to read cache: %w", blkid.ErrIO, err)
	}

	devices, err := decodeDevices(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", blkid.ErrIO, path, err)
	}

	for _, d := range devices {
		c.devices.Set(d.name, d)
	}

	c.logger.Debug("cache loaded", zap.Int("devices", c.devices.Len()))

	return c, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Dirty returns true if the cache was modified since it was opened or saved.
func (c *Cache) Dirty() bool {
	return c.dirty
}

// Len returns the number of cached devices.
func (c *Cache) Len() int {
	return c.devices.Len()
}

// Save writes the cache to its file.
//
// The file is replaced atomically.
func (c *Cache) Save() error {
	doc, err := encodeDevices(c.snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(c.path)

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create cache directory: %w", blkid.ErrIO, err)
	}

	if err = writeFileAtomic(c.path, doc); err != nil {
		return fmt.Errorf("%w: failed to write cache: %w", blkid.ErrIO, err)
	}

	c.dirty = false

	c.logger.Debug("cache saved", zap.Int("devices", c.devices.Len()))

	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(f.Name()))
		}
	}()

	_, err = f.Write(data)

	if err == nil {
		err = f.Sync()
	}

	err = multierr.Append(err, f.Close())

	if err == nil {
		err = os.Chmod(f.Name(), 0o644)
	}

	if err == nil {
		err = os.Rename(f.Name(), path)
	}

	return err
}

func (c *Cache) snapshot() []*Device {
	devices := make([]*Device, 0, c.devices.Len())

	for el := c.devices.Front(); el != nil; el = el.Next() {
		devices = append(devices, el.Value)
	}

	return devices
}

func (c *Cache) set(d *Device) {
	c.devices.Set(d.name, d)
	c.dirty = true
}

func (c *Cache) remove(name string) {
	if c.devices.Delete(name) {
		c.dirty = true
	}
}
