// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"iter"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// sectorUnit is the unit of partition start and size.
const sectorUnit = 512

// Partlist is the list of partitions decoded from a partition table.
type Partlist struct {
	tables []*Parttable
	parts  []*Partition

	sysfs sysfs.FS
	devNo uint64
}

// Parttable describes a partition table.
type Parttable struct {
	parent *Partition

	typ    string
	id     string
	offset uint64
}

// Type returns the table format, e.g. "gpt" or "dos".
func (t *Parttable) Type() string {
	return t.typ
}

// ID returns the disk identifier (GPT disk GUID or DOS disk signature).
func (t *Parttable) ID() string {
	return t.id
}

// Offset returns the offset of the table in bytes.
func (t *Parttable) Offset() uint64 {
	return t.offset
}

// Parent returns the partition containing the table, nil for top-level tables.
func (t *Parttable) Parent() *Partition {
	return t.parent
}

// Partition is an entry of a partition table.
//
// UUID, TypeString and Name are empty when the table format doesn't support them.
type Partition struct {
	table *Parttable

	uuid       string
	typeString string
	name       string

	start uint64
	size  uint64
	typ   uint64
	flags uint64
	partno int

	extended bool
	logical  bool
}

// Partno returns the partition number.
func (p *Partition) Partno() int { return p.partno }

// Start returns the partition start in 512-byte sectors.
func (p *Partition) Start() uint64 { return p.start }

// Size returns the partition size in 512-byte sectors.
func (p *Partition) Size() uint64 { return p.size }

// Type returns the numeric partition type (DOS only).
func (p *Partition) Type() uint64 { return p.typ }

// TypeString returns the partition type as a string (GPT type GUID).
func (p *Partition) TypeString() string { return p.typeString }

// UUID returns the partition UUID.
func (p *Partition) UUID() string { return p.uuid }

// Name returns the partition name (GPT only).
func (p *Partition) Name() string { return p.name }

// Flags returns the partition attributes (DOS boot indicator or GPT attributes).
func (p *Partition) Flags() uint64 { return p.flags }

// IsExtended returns true for DOS extended partitions.
func (p *Partition) IsExtended() bool { return p.extended }

// IsLogical returns true for DOS logical partitions.
func (p *Partition) IsLogical() bool { return p.logical }

// IsPrimary returns true for partitions which are not logical.
func (p *Partition) IsPrimary() bool { return !p.logical }

// Table returns the table containing the partition.
func (p *Partition) Table() *Parttable { return p.table }

// TypeName returns the type as reported in PART_ENTRY_TYPE.
func (p *Partition) TypeName() string {
	if p.typeString != "" {
		return p.typeString
	}

	return fmt.Sprintf("0x%x", p.typ)
}

func newPartlist(res *probe.Result, fs sysfs.FS, devNo uint64) *Partlist {
	ls := &Partlist{
		sysfs: fs,
		devNo: devNo,
	}

	if res == nil {
		return ls
	}

	ls.tables = make([]*Parttable, 0, len(res.Tables))
	ls.parts = make([]*Partition, 0, len(res.Parts))

	for _, table := range res.Tables {
		ls.tables = append(ls.tables, &Parttable{
			typ:    table.Type,
			id:     table.ID,
			offset: table.Offset,
		})
	}

	for _, part := range res.Parts {
		p := &Partition{
			table:      ls.tables[part.Table],
			uuid:       part.UUID,
			typeString: part.TypeString,
			start:      part.Offset / sectorUnit,
			size:       part.Size / sectorUnit,
			typ:        part.Type,
			flags:      part.Flags,
			partno:     int(part.Index),
			extended:   part.Extended,
			logical:    part.Logical,
		}

		if part.Name != nil {
			p.name = *part.Name
		}

		ls.parts = append(ls.parts, p)
	}

	// parents are resolved once all partitions exist, nested tables point to earlier partitions
	for i, table := range res.Tables {
		if table.Parent >= 0 && table.Parent < len(ls.parts) {
			ls.tables[i].parent = ls.parts[table.Parent]
		}
	}

	return ls
}

// Len returns the number of partitions.
func (ls *Partlist) Len() int {
	return len(ls.parts)
}

// Table returns the top-level partition table, nil if there is no table.
func (ls *Partlist) Table() *Parttable {
	if len(ls.tables) == 0 {
		return nil
	}

	return ls.tables[0]
}

// Partition returns the partition by index.
func (ls *Partlist) Partition(i int) (*Partition, error) {
	if i < 0 || i >= len(ls.parts) {
		return nil, fmt.Errorf("%w: partition index %d, %d partitions", ErrOutOfRange, i, len(ls.parts))
	}

	return ls.parts[i], nil
}

// PartitionByPartno returns the partition by its number.
func (ls *Partlist) PartitionByPartno(n int) (*Partition, error) {
	for _, p := range ls.parts {
		if p.partno == n {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: partition number %d", ErrNotFound, n)
}

// Partitions iterates over partitions in table order.
func (ls *Partlist) Partitions() iter.Seq[*Partition] {
	return func(yield func(*Partition) bool) {
		for _, p := range ls.parts {
			if !yield(p) {
				return
			}
		}
	}
}

// DevnoToPartition returns the partition of the probed disk for the partition device number.
func (ls *Partlist) DevnoToPartition(devNo uint64) (*Partition, error) {
	if ls.devNo == 0 {
		return nil, fmt.Errorf("%w: probed file is not a block device", ErrNotFound)
	}

	wholeDevNo, err := ls.sysfs.WholeDisk(devNo)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d:%d: %w", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo), err)
	}

	if wholeDevNo != ls.devNo || devNo == ls.devNo {
		return nil, fmt.Errorf("%w: device %d:%d is not a partition of the probed disk", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo))
	}

	if partno, err := ls.sysfs.PartitionNumber(devNo); err == nil {
		if p, err := ls.PartitionByPartno(partno); err == nil {
			return p, nil
		}
	}

	// partition mappings (e.g. device-mapper) don't have a number, match by location
	start, err := ls.sysfs.ReadUint(devNo, "start")
	if err != nil {
		return nil, fmt.Errorf("%w: device %d:%d: %w", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo), err)
	}

	size, err := ls.sysfs.ReadUint(devNo, "size")
	if err != nil {
		return nil, fmt.Errorf("%w: device %d:%d: %w", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo), err)
	}

	for _, p := range ls.parts {
		if p.start == start && p.size == size {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: no partition at %d+%d", ErrNotFound, start, size)
}
