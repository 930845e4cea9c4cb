// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/siderolabs/go-blkid/internal/gptstructs"
)

// ErrNoSpace is returned when no free extent can hold the partition.
var ErrNoSpace = errors.New("no free space for the partition")

// extent is an aligned range of free sectors.
type extent struct {
	first, last uint64

	// slot of the first partition after the extent, len(entries) for the tail
	slot int
}

func (e extent) sectors() uint64 {
	return e.last - e.first + 1
}

// freeExtents lists aligned gaps between partitions in disk order.
func (t *Table) freeExtents() []extent {
	var (
		extents []extent
		low     = t.layout.firstUsable
	)

	for slot := 0; slot <= len(t.entries); slot++ {
		if slot < len(t.entries) && t.entries[slot] == nil {
			continue
		}

		high := t.layout.lastUsable
		if slot < len(t.entries) {
			high = t.entries[slot].FirstLBA - 1
		}

		first := alignUp(low, t.alignment)
		end := alignDown(high+1, t.alignment)

		if end > first {
			extents = append(extents, extent{first: first, last: end - 1, slot: slot})
		}

		if slot < len(t.entries) {
			low = t.entries[slot].LastLBA + 1
		}
	}

	return extents
}

func alignUp(lba, alignment uint64) uint64 {
	return (lba + alignment - 1) / alignment * alignment
}

func alignDown(lba, alignment uint64) uint64 {
	return lba / alignment * alignment
}

// LargestContiguousAllocatable returns the size in bytes of the largest partition which can be allocated.
func (t *Table) LargestContiguousAllocatable() uint64 {
	var largest uint64

	for _, e := range t.freeExtents() {
		largest = max(largest, e.sectors())
	}

	return largest * uint64(t.sectorSize)
}

// AllocatePartition places a new partition of the given size (in bytes) into the smallest free extent which fits it.
//
// The partition gets the slot right before the next partition on disk if that slot is unused,
// otherwise it is inserted there shifting the following partition numbers.
// The returned partition number is 1-based.
func (t *Table) AllocatePartition(size uint64, name string, partType uuid.UUID, opts ...PartitionOption) (int, Partition, error) {
	var options PartitionOptions

	for _, opt := range opts {
		opt(&options)
	}

	sectors := size / uint64(t.sectorSize)
	if sectors == 0 {
		return 0, Partition{}, fmt.Errorf("partition size %d is smaller than the sector size", size)
	}

	if _, err := encodeName(name); err != nil {
		return 0, Partition{}, err
	}

	if len(t.entries) >= gptstructs.NumEntries && !slices.Contains(t.entries, nil) {
		return 0, Partition{}, errors.New("partition table is full")
	}

	if options.UniqueGUID == uuid.Nil {
		options.UniqueGUID = uuid.New()
	}

	var (
		best  extent
		found bool
	)

	for _, e := range t.freeExtents() {
		if e.sectors() >= sectors && (!found || e.sectors() < best.sectors()) {
			best, found = e, true
		}
	}

	if !found {
		return 0, Partition{}, fmt.Errorf("%w: %d bytes requested, %d available", ErrNoSpace, size, t.LargestContiguousAllocatable())
	}

	part := &Partition{
		Name:     name,
		TypeGUID: partType,
		PartGUID: options.UniqueGUID,
		FirstLBA: best.first,
		LastLBA:  best.first + sectors - 1,
		Flags:    options.Flags,
	}

	slot := best.slot

	switch {
	case slot > 0 && t.entries[slot-1] == nil:
		slot--
		t.entries[slot] = part
	case len(t.entries) >= gptstructs.NumEntries:
		return 0, Partition{}, fmt.Errorf("no free slot before partition %d", slot+1)
	default:
		t.entries = slices.Insert(t.entries, slot, part)
	}

	t.logger.Debug("allocated partition",
		zapPartition(slot+1, part)...,
	)

	return slot + 1, *part, nil
}

// DeletePartition frees the slot with the given index (partition number minus one).
func (t *Table) DeletePartition(idx int) error {
	if idx < 0 || idx >= len(t.entries) {
		return fmt.Errorf("partition %d out of range", idx+1)
	}

	if t.entries[idx] == nil {
		return fmt.Errorf("partition %d is not allocated", idx+1)
	}

	t.entries[idx] = nil
	t.trim()

	return nil
}
