// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe defines common probe interfaces.
package probe

import (
	"io"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
)

// Reader is a context for probing filesystems and volume managers.
//
// Offsets are relative to the start of the probing area.
type Reader interface {
	io.ReaderAt

	GetSectorSize() uint
	GetSize() uint64
}

// Usage is the category of a superblock.
type Usage uint

// Usage categories.
const (
	UsageFilesystem Usage = 1 << iota
	UsageRAID
	UsageCrypto
	UsageOther
)

// Prober is an interface for probing filesystems and volume managers.
type Prober interface {
	// Name returns the name of the filesystem or volume manager.
	Name() string
	// Usage returns the category of the signature.
	Usage() Usage
	// Magic returns the magic value for the filesystem or volume manager.
	//
	// Probers without a fixed signature return nil, and they are always called.
	Magic() []*magic.Magic
	// Probe runs the further inspection and returns the result if successful.
	//
	// The magic which matched is passed in.
	// Nil result and nil error means no match.
	Probe(Reader, magic.Magic) (*Result, error)
}

// Tolerant is implemented by probers whose signature may coexist with another one.
type Tolerant interface {
	Tolerant() bool
}

// IsTolerant returns true if the prober implements Tolerant and reports true.
func IsTolerant(p Prober) bool {
	t, ok := p.(Tolerant)

	return ok && t.Tolerant()
}

// Result is a probe result.
type Result struct {
	UUID    string
	UUIDRaw []byte

	Label    *string
	LabelRaw []byte

	Version string
	SecType string

	// Magic overrides the location of the signature, if it differs from the matched magic.
	Magic *magic.Magic

	BlockSize           uint32
	FilesystemBlockSize uint32
	ProbedSize          uint64

	// BadChecksum is set when the signature matched but the metadata checksum did not.
	BadChecksum bool

	// Partition table results.
	Tables []Table
	Parts  []Partition
}

// Table is a partition table sub-result.
//
// The first table is the top-level one.
type Table struct {
	Type   string
	ID     string
	Offset uint64

	// Parent is an index into Result.Parts, -1 for top-level tables.
	Parent int
}

// Partition is a probe sub-result.
type Partition struct {
	UUID       string
	Type       uint64
	TypeString string
	Name       *string
	Flags      uint64

	Index uint // partition number, 1-based

	Offset uint64
	Size   uint64

	// Table is an index into Result.Tables.
	Table int

	Extended bool
	Logical  bool
}
