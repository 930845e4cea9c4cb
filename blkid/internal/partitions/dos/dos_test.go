// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package dos_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/partitions/dos"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/testimages"
)

type entry struct {
	boot    byte
	typ     byte
	start   uint32
	sectors uint32
}

func writeTable(disk []byte, lba uint64, entries ...entry) {
	sector := disk[lba*512 : (lba+1)*512]

	for i, e := range entries {
		off := 0x1be + 16*i

		sector[off] = e.boot
		sector[off+4] = e.typ
		binary.LittleEndian.PutUint32(sector[off+8:], e.start)
		binary.LittleEndian.PutUint32(sector[off+12:], e.sectors)
	}

	sector[510], sector[511] = 0x55, 0xaa
}

func buildDisk() []byte {
	disk := make([]byte, 26624*512)

	binary.LittleEndian.PutUint32(disk[0x1b8:], 0xdeadbeef)

	writeTable(disk, 0,
		entry{boot: 0x80, typ: 0x83, start: 2048, sectors: 4096},
		entry{typ: dos.TypeExtended, start: 8192, sectors: 16384},
		entry{},
		entry{typ: 0x82, start: 24576, sectors: 2048},
	)

	// first EBR: data relative to the EBR, link relative to the extended partition
	writeTable(disk, 8192,
		entry{typ: 0x83, start: 2048, sectors: 2048},
		entry{typ: dos.TypeExtended, start: 6144, sectors: 4096},
	)

	writeTable(disk, 14336,
		entry{typ: 0x83, start: 2048, sectors: 2048},
	)

	return disk
}

func probeDisk(t *testing.T, disk []byte) *probe.Result {
	t.Helper()

	p := &dos.Probe{}

	m, ok := magic.Match(p.Magic(), disk)
	if !ok {
		return nil
	}

	res, err := p.Probe(testimages.NewReader(disk), m)
	require.NoError(t, err)

	return res
}

func TestProbe(t *testing.T) {
	res := probeDisk(t, buildDisk())
	require.NotNil(t, res)

	assert.Equal(t, "deadbeef", res.UUID)

	assert.Equal(t, []probe.Table{
		{Type: "dos", ID: "deadbeef", Parent: -1},
		{Type: "dos", ID: "deadbeef", Offset: 8192 * 512, Parent: 1},
	}, res.Tables)

	assert.Equal(t, []probe.Partition{
		{UUID: "deadbeef-01", Type: 0x83, Flags: 0x80, Index: 1, Offset: 2048 * 512, Size: 4096 * 512},
		{UUID: "deadbeef-02", Type: 0x05, Index: 2, Offset: 8192 * 512, Size: 16384 * 512, Extended: true},
		{UUID: "deadbeef-04", Type: 0x82, Index: 4, Offset: 24576 * 512, Size: 2048 * 512},
		{UUID: "deadbeef-05", Type: 0x83, Index: 5, Offset: 10240 * 512, Size: 2048 * 512, Table: 1, Logical: true},
		{UUID: "deadbeef-06", Type: 0x83, Index: 6, Offset: 16384 * 512, Size: 2048 * 512, Table: 1, Logical: true},
	}, res.Parts)
}

func TestProbeEmptyTable(t *testing.T) {
	disk := make([]byte, 4096*512)
	writeTable(disk, 0)

	res := probeDisk(t, disk)
	require.NotNil(t, res)

	assert.Len(t, res.Tables, 1)
	assert.Empty(t, res.Parts)
}

func TestProbeRejects(t *testing.T) {
	for _, test := range []struct {
		name  string
		build func() []byte
	}{
		{
			name: "protective MBR",
			build: func() []byte {
				disk := make([]byte, 4096*512)
				writeTable(disk, 0, entry{typ: dos.TypeProtective, start: 1, sectors: 4095})

				return disk
			},
		},
		{
			name: "bad boot indicator",
			build: func() []byte {
				disk := buildDisk()
				disk[0x1be] = 0x12

				return disk
			},
		},
		{
			name: "no signature",
			build: func() []byte {
				disk := buildDisk()
				disk[510] = 0

				return disk
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Nil(t, probeDisk(t, test.build()))
		})
	}
}
