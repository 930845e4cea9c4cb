// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
)

// Capabilities is a set of optional operations.
type Capabilities uint

// Capabilities.
const (
	// CapSectorSize allows overriding the sector size of the probe.
	CapSectorSize Capabilities = 1 << iota
	// CapResetBuffers allows dropping the buffer cache and hidden ranges.
	CapResetBuffers
	// CapHideRange allows hiding byte ranges of the probing area.
	CapHideRange
	// CapDAX reports the DAX topology value.
	CapDAX
	// CapWipeAll allows wiping all signatures in one call.
	CapWipeAll
)

var capabilityNames = []struct {
	cap   Capabilities
	name  string
	since string
}{
	{CapSectorSize, "sector-size", ">=2.30.0"},
	{CapResetBuffers, "reset-buffers", ">=2.31.0"},
	{CapHideRange, "hide-range", ">=2.31.0"},
	{CapDAX, "dax", ">=2.36.0"},
	{CapWipeAll, "wipe-all", ">=2.38.0"},
}

// Has returns true if all capabilities in c are present.
func (caps Capabilities) Has(c Capabilities) bool {
	return caps&c == c
}

func (caps Capabilities) String() string {
	var names []string

	for _, item := range capabilityNames {
		if caps.Has(item.cap) {
			names = append(names, item.name)
		}
	}

	return strings.Join(names, ",")
}

// CapabilitiesForVersion returns the capabilities available in the given library version.
func CapabilitiesForVersion(version string) (Capabilities, error) {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid version %q: %w", ErrArgument, version, err)
	}

	var caps Capabilities

	for _, item := range capabilityNames {
		r, err := semver.ParseRange(item.since)
		if err != nil {
			return 0, err
		}

		if r(v) {
			caps |= item.cap
		}
	}

	return caps, nil
}

var supportedCapabilities = sync.OnceValue(func() Capabilities {
	caps, err := CapabilitiesForVersion(Version)
	if err != nil {
		panic(err)
	}

	return caps
})

// SupportedCapabilities returns the capabilities of this library version.
func SupportedCapabilities() Capabilities {
	return supportedCapabilities()
}

func (p *Probe) require(c Capabilities) error {
	if !p.options.Capabilities.Has(c) {
		return fmt.Errorf("%w: %s", ErrUnsupported, c)
	}

	return nil
}
