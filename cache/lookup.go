// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/siderolabs/go-blkid/blkid"
)

// Devices iterates over the devices cached at the time of the call.
//
// The sequence can be iterated multiple times, it doesn't reflect later changes to the cache.
func (c *Cache) Devices() iter.Seq[*Device] {
	return slices.Values(c.snapshot())
}

// FindByPath returns the cached device with the path.
func (c *Cache) FindByPath(name string) (*Device, error) {
	d, ok := c.devices.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: device %s", blkid.ErrNotFound, name)
	}

	return d, nil
}

// FindByTag returns the cached device with the tag.
//
// If several devices carry the tag, the one with the highest priority wins,
// then the most recently verified one, then the first by path.
func (c *Cache) FindByTag(tag, value string) (*Device, error) {
	var candidates []*Device

	for _, d := range c.snapshot() {
		if v, ok := d.Tag(tag); ok && v == value {
			candidates = append(candidates, d)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no device with %s=%q", blkid.ErrNotFound, tag, value)
	}

	return slices.MinFunc(candidates, func(a, b *Device) int {
		return cmp.Or(
			cmp.Compare(b.priority, a.priority),
			b.verified.Compare(a.verified),
			cmp.Compare(a.name, b.name),
		)
	}), nil
}

// Device looks up the device by path.
//
// With LookupCreate an unknown device gets an empty entry.
// With LookupVerify the device is probed again if the entry is stale,
// a device which is gone is reported as not found but stays cached until GarbageCollect.
func (c *Cache) Device(name string, mode LookupMode) (*Device, error) {
	d, ok := c.devices.Get(name)

	if !ok {
		if mode&LookupCreate == 0 {
			return nil, fmt.Errorf("%w: device %s", blkid.ErrNotFound, name)
		}

		d = newDevice(name)
		c.set(d)
	}

	if mode&LookupVerify == 0 {
		return d, nil
	}

	verified, err := c.verify(d)
	if err != nil && !ok {
		c.remove(name)
	}

	return verified, err
}
