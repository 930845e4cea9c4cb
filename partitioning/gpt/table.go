// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt creates and modifies GUID partition tables.
package gpt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-blkid/internal/gptstructs"
	"github.com/siderolabs/go-blkid/internal/gptutil"
)

// ErrNoTable is returned by Read if neither GPT header is valid.
var ErrNoTable = errors.New("no GPT header found")

// Partition is a single partition entry.
type Partition struct {
	Name string

	TypeGUID uuid.UUID
	PartGUID uuid.UUID

	FirstLBA uint64
	LastLBA  uint64

	Flags uint64
}

// Sectors returns the length of the partition in sectors.
func (p *Partition) Sectors() uint64 {
	return p.LastLBA - p.FirstLBA + 1
}

// Table is an in-memory GPT, changes are applied to the device by Write.
type Table struct {
	dev     Device
	logger  *zap.Logger
	options Options

	// slot i holds partition number i+1, nil for unused slots
	entries []*Partition

	diskGUID uuid.UUID
	layout   layout

	sectorSize uint
	alignment  uint64
}

// layout is the placement of the GPT structures on the disk.
type layout struct {
	lastLBA uint64

	primaryHeader, backupHeader   uint64
	primaryEntries, backupEntries uint64

	firstUsable, lastUsable uint64
}

func newLayout(lastLBA uint64, sectorSize uint) layout {
	entriesLBAs := uint64((gptstructs.EntrySize*gptstructs.NumEntries + sectorSize - 1) / sectorSize)

	return layout{
		lastLBA:        lastLBA,
		primaryHeader:  1,
		backupHeader:   lastLBA,
		primaryEntries: 2,
		backupEntries:  lastLBA - entriesLBAs,
		firstUsable:    2 + entriesLBAs,
		lastUsable:     lastLBA - entriesLBAs - 1,
	}
}

// New creates an empty table, nothing is written until Write is called.
func New(dev Device, opts ...Option) (*Table, error) {
	t, err := newTable(dev, opts...)
	if err != nil {
		return nil, err
	}

	t.diskGUID = t.options.DiskGUID
	if t.diskGUID == uuid.Nil {
		t.diskGUID = uuid.New()
	}

	return t, nil
}

// Read loads the table from the device, falling back to the backup header.
//
// Read returns ErrNoTable if there is no valid GPT on the device.
func Read(dev Device, opts ...Option) (*Table, error) {
	t, err := newTable(dev, opts...)
	if err != nil {
		return nil, err
	}

	hdr, entries, err := gptstructs.ReadHeader(dev, t.layout.primaryHeader, t.layout.lastLBA)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary header: %w", err)
	}

	if hdr == nil {
		t.logger.Warn("primary GPT header is invalid, trying the backup one")

		hdr, entries, err = gptstructs.ReadHeader(dev, t.layout.backupHeader, t.layout.lastLBA)
		if err != nil {
			return nil, fmt.Errorf("failed to read backup header: %w", err)
		}
	}

	if hdr == nil {
		return nil, ErrNoTable
	}

	t.diskGUID, err = uuid.FromBytes(gptutil.GUIDToUUID(hdr.DiskGUID[:]))
	if err != nil {
		return nil, err
	}

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

	t.entries = make([]*Partition, len(entries))

	for i, entry := range entries {
		// entries outside of the usable area are dropped, they would be overwritten anyways
		if entry.IsEmpty() || entry.StartingLBA < t.layout.firstUsable || entry.EndingLBA > t.layout.lastUsable {
			continue
		}

		if t.entries[i], err = decodeEntry(decoder.Bytes, entry); err != nil {
			return nil, fmt.Errorf("failed to decode partition %d: %w", i+1, err)
		}
	}

	t.trim()

	return t, nil
}

func newTable(dev Device, opts ...Option) (*Table, error) {
	options := applyOptions(opts...)

	lastLBA, ok := gptutil.LastLBA(dev)
	if !ok || lastLBA < 2*(1+gptstructs.EntrySize*gptstructs.NumEntries/uint64(dev.GetSectorSize())) {
		return nil, errors.New("device is too small for GPT")
	}

	t := &Table{
		dev:        dev,
		logger:     options.Logger,
		options:    options,
		sectorSize: dev.GetSectorSize(),
	}

	t.layout = newLayout(lastLBA, t.sectorSize)

	ioSize, err := dev.GetIOSize()
	if err != nil {
		ioSize = t.sectorSize
	}

	// align partitions to 1 MiB at least
	alignment := max(uint64(ioSize), 2048*512)
	t.alignment = (alignment + uint64(t.sectorSize) - 1) / uint64(t.sectorSize)

	return t, nil
}

func decodeEntry(decode func([]byte) ([]byte, error), entry *gptstructs.Entry) (*Partition, error) {
	typeGUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.PartitionTypeGUID[:]))
	if err != nil {
		return nil, err
	}

	partGUID, err := uuid.FromBytes(gptutil.GUIDToUUID(entry.UniquePartitionGUID[:]))
	if err != nil {
		return nil, err
	}

	name, err := decode(entry.PartitionName[:])
	if err != nil {
		return nil, err
	}

	return &Partition{
		Name:     string(bytes.TrimRight(name, "\x00")),
		TypeGUID: typeGUID,
		PartGUID: partGUID,
		FirstLBA: entry.StartingLBA,
		LastLBA:  entry.EndingLBA,
		Flags:    entry.Attributes,
	}, nil
}

// DiskGUID returns the disk GUID.
func (t *Table) DiskGUID() uuid.UUID {
	return t.diskGUID
}

// SectorSize returns the logical sector size of the device.
func (t *Table) SectorSize() uint {
	return t.sectorSize
}

// Partitions returns the partition slots, the slot index is the partition number minus one.
//
// Unused slots are nil, the returned partitions should not be modified.
func (t *Table) Partitions() []*Partition {
	return append([]*Partition(nil), t.entries...)
}

// trim drops unused slots at the end.
func (t *Table) trim() {
	for len(t.entries) > 0 && t.entries[len(t.entries)-1] == nil {
		t.entries = t.entries[:len(t.entries)-1]
	}

	if len(t.entries) == 0 {
		t.entries = nil
	}
}
