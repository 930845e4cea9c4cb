// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"iter"
	"path/filepath"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/ryanuber/go-glob"
)

// LookupMode controls Cache.Device behavior for unknown and stale entries.
type LookupMode int

// Lookup modes.
const (
	// LookupCreate adds an empty entry if the device is not cached.
	LookupCreate LookupMode = 1 << iota
	// LookupVerify probes the device again if the entry is older than the verify interval.
	LookupVerify

	// LookupFind returns the cached entry as is.
	LookupFind LookupMode = 0

	LookupNormal = LookupCreate | LookupVerify
)

// Device is a cached block device.
//
// Devices are immutable, refreshing an entry replaces it in the cache.
type Device struct {
	tags     *orderedmap.OrderedMap[string, string]
	verified time.Time
	name     string
	devNo    uint64
	priority int
}

func newDevice(name string) *Device {
	return &Device{
		name:     name,
		priority: devicePriority(name),
		tags:     orderedmap.NewOrderedMap[string, string](),
	}
}

// Name returns the device path.
func (d *Device) Name() string { return d.name }

// DevNo returns the device number, zero if unknown.
func (d *Device) DevNo() uint64 { return d.devNo }

// Priority returns the device priority used to choose between devices with the same tag.
func (d *Device) Priority() int { return d.priority }

// Verified returns the time of the last successful probe.
func (d *Device) Verified() time.Time { return d.verified }

// Tag returns the value of the named tag.
func (d *Device) Tag(name string) (string, bool) {
	return d.tags.Get(name)
}

// Tags iterates over the tags in discovery order.
func (d *Device) Tags() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for el := d.tags.Front(); el != nil; el = el.Next() {
			if !yield(el.Key, el.Value) {
				return
			}
		}
	}
}

// NumTags returns the number of tags.
func (d *Device) NumTags() int {
	return d.tags.Len()
}

var priorities = []struct {
	pattern  string
	priority int
}{
	{"dm-*", 40},
	{"md*", 10},
}

// devicePriority prefers device-mapper and md devices over the devices they are built on.
func devicePriority(path string) int {
	name := filepath.Base(path)

	if filepath.Base(filepath.Dir(path)) == "mapper" {
		name = "dm-" + name
	}

	for _, p := range priorities {
		if glob.Glob(p.pattern, name) {
			return p.priority
		}
	}

	return 0
}
