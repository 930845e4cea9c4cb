// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"slices"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// SetFilterType filters the detectors of the chain by name.
//
// The filter replaces any previous filter of the chain.
func (p *Probe) SetFilterType(c Chain, mode FilterMode, names ...string) error {
	return p.setFilter(c, mode, func(prober probe.Prober) bool {
		return slices.Contains(names, prober.Name())
	})
}

// SetFilterUsage filters the superblocks chain by usage category.
func (p *Probe) SetFilterUsage(c Chain, mode FilterMode, usage Usage) error {
	if c != ChainSuperblocks {
		return fmt.Errorf("%w: chain %s does not support usage filters", ErrArgument, c)
	}

	return p.setFilter(c, mode, func(prober probe.Prober) bool {
		return Usage(prober.Usage())&usage != 0
	})
}

// InvertFilter inverts the filter of the chain.
func (p *Probe) InvertFilter(c Chain) error {
	cs, err := p.filterable(c)
	if err != nil {
		return err
	}

	for i := range cs.filter {
		cs.filter[i] = !cs.filter[i]
	}

	p.filterChanged(cs)

	return nil
}

// ResetFilter removes the filter of the chain.
func (p *Probe) ResetFilter(c Chain) error {
	cs, err := p.filterable(c)
	if err != nil {
		return err
	}

	clear(cs.filter)

	p.filterChanged(cs)

	return nil
}

func (p *Probe) setFilter(c Chain, mode FilterMode, matches func(probe.Prober) bool) error {
	if mode != FilterNotIn && mode != FilterOnlyIn {
		return fmt.Errorf("%w: invalid filter mode %d", ErrArgument, mode)
	}

	cs, err := p.filterable(c)
	if err != nil {
		return err
	}

	for i, prober := range cs.probers {
		// filter[i] is true when the detector is skipped
		cs.filter[i] = matches(prober) == (mode == FilterNotIn)
	}

	p.filterChanged(cs)

	return nil
}

func (p *Probe) filterable(c Chain) (*chainState, error) {
	if c != ChainSuperblocks && c != ChainPartitions {
		return nil, fmt.Errorf("%w: chain %s does not support filters", ErrArgument, c)
	}

	return p.chains[c], nil
}

func (p *Probe) filterChanged(cs *chainState) {
	cs.idx = -1

	if p.state != StateUnbound {
		p.invalidate()
	}
}
