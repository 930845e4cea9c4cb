// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import "strconv"

// Topology describes the I/O geometry of the probed device.
//
// Zero values mean "unknown".
type Topology struct {
	AlignmentOffset    uint64
	MinimumIOSize      uint64
	OptimalIOSize      uint64
	LogicalSectorSize  uint64
	PhysicalSectorSize uint64
	DAX                bool
}

// Topology returns the topology of the bound device.
//
// The result is computed once per binding (and sector size override).
func (p *Probe) Topology() (Topology, error) {
	if err := p.checkBound(); err != nil {
		return Topology{}, err
	}

	if p.topology != nil {
		return *p.topology, nil
	}

	topology, err := p.deviceTopology()
	if err != nil {
		return Topology{}, err
	}

	if p.sectorSizeOverride != 0 {
		topology.LogicalSectorSize = uint64(p.sectorSizeOverride)
	}

	if !p.options.Capabilities.Has(CapDAX) {
		topology.DAX = false
	}

	p.topology = &topology

	return topology, nil
}

func (p *Probe) regularFileTopology() Topology {
	return Topology{
		MinimumIOSize:      uint64(p.sectorSize),
		LogicalSectorSize:  uint64(p.sectorSize),
		PhysicalSectorSize: uint64(p.sectorSize),
	}
}

func (t Topology) values() *Values {
	values := newValues()

	for _, item := range []struct {
		name  string
		value uint64
	}{
		{"ALIGNMENT_OFFSET", t.AlignmentOffset},
		{"MINIMUM_IO_SIZE", t.MinimumIOSize},
		{"OPTIMAL_IO_SIZE", t.OptimalIOSize},
		{"PHYSICAL_SECTOR_SIZE", t.PhysicalSectorSize},
		{"LOGICAL_SECTOR_SIZE", t.LogicalSectorSize},
	} {
		if item.value != 0 {
			values.set(item.name, strconv.FormatUint(item.value, 10))
		}
	}

	if t.DAX {
		values.set("DAX", "1")
	}

	return values
}
