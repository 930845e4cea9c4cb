// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chain provides ordered lists of probers for superblocks and partition tables.
package chain

import (
	"slices"

	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/bluestore"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ext"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/iso9660"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/luks"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/lvm2"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/squashfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/swap"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/talosmeta"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vfat"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/xfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/zfs"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/partitions/dos"
	"github.com/siderolabs/go-blkid/blkid/internal/partitions/gpt"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// Chain is a list of probers.
type Chain []probe.Prober

// MaxMagicSize returns the maximum size of the magic value in the chain.
func (chain Chain) MaxMagicSize() int {
	size := 0

	for _, prober := range chain {
		size = max(size, magic.MaxBlockSize(prober.Magic()))
	}

	return size
}

// Names returns prober names in chain order.
func (chain Chain) Names() []string {
	return xslices.Map(chain, probe.Prober.Name)
}

// Index returns the position of the named prober, or -1.
func (chain Chain) Index(name string) int {
	return slices.IndexFunc(chain, func(p probe.Prober) bool { return p.Name() == name })
}

// Superblocks returns the superblock probers in the order they are tried.
func Superblocks() Chain {
	return Chain{
		&lvm2.Probe{},
		&luks.Probe{},
		&xfs.Probe{},
		&ext.Probe4{},
		&ext.Probe3{},
		&ext.Probe2{},
		&vfat.Probe{},
		&swap.Probe{},
		&squashfs.Probe{},
		&iso9660.Probe{},
		&bluestore.Probe{},
		&talosmeta.Probe{},
		&zfs.Probe{},
	}
}

// Options configure the partitions chain.
type Options struct {
	// ForceGPT probes GPT even if a valid legacy MBR is present.
	ForceGPT bool
}

// Partitions returns the partition table probers in the order they are tried.
func Partitions(opts Options) Chain {
	return Chain{
		&dos.Probe{},
		&gpt.Probe{Force: opts.ForceGPT},
	}
}
