// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package gpt_test

import (
	"encoding/binary"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/block"
	"github.com/siderolabs/go-blkid/internal/gptstructs"
	"github.com/siderolabs/go-blkid/internal/looptest"
	"github.com/siderolabs/go-blkid/partitioning/gpt"
)

const (
	MiB = looptest.MiB
	GiB = looptest.GiB
)

var diskGUID = uuid.MustParse("B6D003E5-7D1D-45E3-9F4B-4A2430B46D4A")

func openImage(t *testing.T, size uint64) (*os.File, gpt.Device) {
	t.Helper()

	f, err := os.OpenFile(looptest.CreateImage(t, size), os.O_RDWR, 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, f.Close())
	})

	dev, err := gpt.DeviceFromImage(f, 512)
	require.NoError(t, err)

	return f, dev
}

func allocate(t *testing.T, table *gpt.Table, size uint64, name string, opts ...gpt.PartitionOption) int {
	t.Helper()

	partno, part, err := table.AllocatePartition(size, name, gpt.TypeLinuxData, opts...)
	require.NoError(t, err)

	assert.Equal(t, name, part.Name)
	assert.Equal(t, size/512, part.Sectors())

	return partno
}

type layoutEntry struct {
	name     string
	firstLBA uint64
	sectors  uint64
}

//nolint:maintidx
func TestWriteRead(t *testing.T) {
	t.Parallel()

	for _, test := range []struct { //nolint:govet
		name     string
		diskSize uint64
		opts     []gpt.Option

		allocate func(*testing.T, *gpt.Table)

		expectedPMBR byte
		expected     []*layoutEntry
	}{
		{
			name:         "empty",
			diskSize:     2 * GiB,
			expectedPMBR: 0x00,
		},
		{
			name:     "no PMBR",
			diskSize: 2 * GiB,
			opts:     []gpt.Option{gpt.WithSkipPMBR()},
		},
		{
			name:         "bootable PMBR",
			diskSize:     2 * GiB,
			opts:         []gpt.Option{gpt.WithMarkPMBRBootable()},
			expectedPMBR: 0x80,
		},
		{
			name:     "sequential",
			diskSize: 6 * GiB,
			allocate: func(t *testing.T, table *gpt.Table) {
				assert.Equal(t, 1, allocate(t, table, 1*GiB, "EFI"))
				assert.Equal(t, 2, allocate(t, table, 100*MiB, "BIOS", gpt.WithLegacyBIOSBootableAttribute(true)))
				assert.Equal(t, 3, allocate(t, table, 2.5*GiB, "DATA"))
			},
			expected: []*layoutEntry{
				{"EFI", 2048, 2 * 1024 * 1024},
				{"BIOS", 2099200, 200 * 1024},
				{"DATA", 2304000, 5 * 1024 * 1024},
			},
		},
		{
			name:     "holes",
			diskSize: 6 * GiB,
			allocate: func(t *testing.T, table *gpt.Table) {
				allocate(t, table, 1*GiB, "A")
				allocate(t, table, 1*GiB, "B")
				allocate(t, table, 1*GiB, "C")

				require.NoError(t, table.DeletePartition(1))

				// fits the hole, takes the freed slot
				assert.Equal(t, 2, allocate(t, table, 200*MiB, "D"))

				// too large for the rest of the hole
				assert.Equal(t, 4, allocate(t, table, 900*MiB, "E"))

				// best fit is the remainder of the hole, inserted before C
				assert.Equal(t, 3, allocate(t, table, 500*MiB, "F"))
			},
			expected: []*layoutEntry{
				{"A", 2048, 2 * 1024 * 1024},
				{"D", 2099200, 400 * 1024},
				{"F", 2508800, 1000 * 1024},
				{"C", 4196352, 2 * 1024 * 1024},
				{"E", 6293504, 1800 * 1024},
			},
		},
		{
			name:     "leading hole",
			diskSize: 64 * MiB,
			allocate: func(t *testing.T, table *gpt.Table) {
				allocate(t, table, 10*MiB, "A")
				allocate(t, table, 10*MiB, "B")

				require.NoError(t, table.DeletePartition(0))

				assert.Equal(t, 1, allocate(t, table, 4*MiB, "C"))
			},
			expected: []*layoutEntry{
				{"C", 2048, 8 * 1024},
				{"B", 22528, 20 * 1024},
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			disk, dev := openImage(t, test.diskSize)

			opts := append([]gpt.Option{gpt.WithDiskGUID(diskGUID), gpt.WithLogger(zaptest.NewLogger(t))}, test.opts...)

			table, err := gpt.New(dev, opts...)
			require.NoError(t, err)

			assert.Equal(t, diskGUID, table.DiskGUID())
			assert.EqualValues(t, 512, table.SectorSize())
			assert.EqualValues(t, test.diskSize-2*MiB, table.LargestContiguousAllocatable())

			if test.allocate != nil {
				test.allocate(t, table)
			}

			require.NoError(t, table.Write())

			assertLayout(t, disk, test.diskSize, test.opts, test.expectedPMBR)

			reread, err := gpt.Read(dev, opts...)
			require.NoError(t, err)

			assert.Equal(t, diskGUID, reread.DiskGUID())
			assert.Equal(t, table.Partitions(), reread.Partitions())

			var actual []*layoutEntry

			for _, part := range reread.Partitions() {
				require.NotNil(t, part)

				actual = append(actual, &layoutEntry{part.Name, part.FirstLBA, part.Sectors()})
			}

			assert.Equal(t, test.expected, actual)

			// writing the same table again is stable
			require.NoError(t, reread.Write())

			again, err := gpt.Read(dev, opts...)
			require.NoError(t, err)
			assert.Equal(t, table.Partitions(), again.Partitions())
		})
	}
}

func assertLayout(t *testing.T, disk *os.File, size uint64, opts []gpt.Option, bootIndicator byte) {
	t.Helper()

	lastLBA := size/512 - 1

	mbr := make([]byte, 512)
	_, err := disk.ReadAt(mbr, 0)
	require.NoError(t, err)

	var options gpt.Options

	for _, opt := range opts {
		opt(&options)
	}

	if options.SkipPMBR {
		assert.Equal(t, make([]byte, 512), mbr)
	} else {
		assert.Equal(t, []byte{0x55, 0xaa}, mbr[510:])
		assert.Equal(t, bootIndicator, mbr[446])
		assert.EqualValues(t, 0xee, mbr[446+4])
		assert.EqualValues(t, 1, binary.LittleEndian.Uint32(mbr[446+8:]))
		assert.EqualValues(t, lastLBA, binary.LittleEndian.Uint32(mbr[446+12:]))
	}

	for _, lba := range []uint64{1, lastLBA} {
		buf := make([]byte, 512)
		_, err = disk.ReadAt(buf, int64(lba*512))
		require.NoError(t, err)

		hdr, err := gptstructs.UnpackHeader(buf)
		require.NoError(t, err)

		assert.EqualValues(t, gptstructs.HeaderSignature, hdr.Signature)
		assert.Equal(t, lba, hdr.MyLBA)
		assert.EqualValues(t, 34, hdr.FirstUsableLBA)
		assert.Equal(t, lastLBA-33, hdr.LastUsableLBA)
		assert.Equal(t, make([]byte, 512-gptstructs.HeaderSize), buf[gptstructs.HeaderSize:])
	}
}

func TestProbeWritten(t *testing.T) {
	t.Parallel()

	disk, dev := openImage(t, 64*MiB)

	table, err := gpt.New(dev, gpt.WithDiskGUID(diskGUID))
	require.NoError(t, err)

	allocate(t, table, 10*MiB, "boot", gpt.WithLegacyBIOSBootableAttribute(true))
	allocate(t, table, 20*MiB, "data")

	require.NoError(t, table.Write())

	p, err := blkid.NewFromPath(disk.Name())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, p.Close())
	})

	ls, err := p.Partitions()
	require.NoError(t, err)

	assert.Equal(t, "gpt", ls.Table().Type())
	assert.Equal(t, diskGUID.String(), ls.Table().ID())
	require.Equal(t, 2, ls.Len())

	for i, part := range table.Partitions() {
		probed, err := ls.Partition(i)
		require.NoError(t, err)

		assert.Equal(t, i+1, probed.Partno())
		assert.Equal(t, part.Name, probed.Name())
		assert.Equal(t, part.PartGUID.String(), probed.UUID())
		assert.Equal(t, gpt.TypeLinuxData.String(), probed.TypeName())
		assert.EqualValues(t, part.FirstLBA, probed.Start())
		assert.EqualValues(t, part.Sectors(), probed.Size())
		assert.Equal(t, part.Flags, probed.Flags())
	}
}

func TestProbeForceGPT(t *testing.T) {
	t.Parallel()

	disk, dev := openImage(t, 64*MiB)

	table, err := gpt.New(dev, gpt.WithDiskGUID(diskGUID))
	require.NoError(t, err)

	allocate(t, table, 10*MiB, "boot")
	allocate(t, table, 20*MiB, "data")

	require.NoError(t, table.Write())

	// hybrid MBR: the protective entry becomes a Linux one
	_, err = disk.WriteAt([]byte{0x83}, 446+4)
	require.NoError(t, err)

	p, err := blkid.NewFromPath(disk.Name())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, p.Close())
	})

	require.NoError(t, p.SetFilterType(blkid.ChainPartitions, blkid.FilterNotIn, "dos"))

	ls, err := p.Partitions()
	require.NoError(t, err)
	assert.Nil(t, ls.Table())

	p.SetPartitionsFlags(blkid.PartitionForceGPT)

	forced, err := p.Partitions()
	require.NoError(t, err)
	assert.NotSame(t, ls, forced)

	require.NotNil(t, forced.Table())
	assert.Equal(t, "gpt", forced.Table().Type())
	assert.Equal(t, 2, forced.Len())
}

func TestReadBackupHeader(t *testing.T) {
	t.Parallel()

	disk, dev := openImage(t, 64*MiB)

	table, err := gpt.New(dev, gpt.WithDiskGUID(diskGUID))
	require.NoError(t, err)

	allocate(t, table, 10*MiB, "A")

	require.NoError(t, table.Write())

	// destroy the primary header
	_, err = disk.WriteAt(make([]byte, 512), 512)
	require.NoError(t, err)

	reread, err := gpt.Read(dev, gpt.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, diskGUID, reread.DiskGUID())
	assert.Equal(t, table.Partitions(), reread.Partitions())

	// writing restores the primary header
	require.NoError(t, reread.Write())

	buf := make([]byte, 8)
	_, err = disk.ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, "EFI PART", string(buf))
}

func TestReadNoTable(t *testing.T) {
	t.Parallel()

	_, dev := openImage(t, 16*MiB)

	_, err := gpt.Read(dev)
	require.ErrorIs(t, err, gpt.ErrNoTable)
}

func TestTooSmall(t *testing.T) {
	t.Parallel()

	_, dev := openImage(t, 16*1024)

	_, err := gpt.New(dev)
	require.Error(t, err)
}

func TestAllocateErrors(t *testing.T) {
	t.Parallel()

	_, dev := openImage(t, 16*MiB)

	table, err := gpt.New(dev)
	require.NoError(t, err)

	_, _, err = table.AllocatePartition(100, "tiny", gpt.TypeLinuxData)
	require.Error(t, err)

	_, _, err = table.AllocatePartition(1*MiB, strings.Repeat("x", 37), gpt.TypeLinuxData)
	require.EqualError(t, err, `partition name "`+strings.Repeat("x", 37)+`" is too long`)

	_, _, err = table.AllocatePartition(15*MiB, "huge", gpt.TypeLinuxData)
	require.ErrorIs(t, err, gpt.ErrNoSpace)

	allocate(t, table, table.LargestContiguousAllocatable(), "all")
	assert.Zero(t, table.LargestContiguousAllocatable())

	_, _, err = table.AllocatePartition(1*MiB, "more", gpt.TypeLinuxData)
	require.ErrorIs(t, err, gpt.ErrNoSpace)

	require.EqualError(t, table.DeletePartition(1), "partition 2 out of range")
	require.NoError(t, table.DeletePartition(0))
	require.EqualError(t, table.DeletePartition(0), "partition 1 out of range")

	assert.Empty(t, table.Partitions())
}

func TestImageDevice(t *testing.T) {
	t.Parallel()

	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, dir.Close())
	})

	_, err = gpt.DeviceFromImage(dir, 512)
	require.Error(t, err)

	_, dev := openImage(t, 1*MiB)
	assert.EqualValues(t, 512, dev.GetSectorSize())
	assert.EqualValues(t, 1*MiB, dev.GetSize())
}

func TestLoopDevice(t *testing.T) {
	looptest.SkipIfNotRoot(t)

	loDev := looptest.Attach(t, looptest.CreateImage(t, 2*GiB), false)

	blkdev, err := block.NewFromPath(loDev.Path(), block.OpenForWrite())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, blkdev.Close())
	})

	dev, err := gpt.DeviceFromBlockDevice(blkdev)
	require.NoError(t, err)

	assert.EqualValues(t, 2*GiB, dev.GetSize())

	table, err := gpt.New(dev, gpt.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	for _, name := range []string{"EFI", "BOOT", "STATE"} {
		allocate(t, table, 100*MiB, name)
	}

	require.NoError(t, table.Write())

	last, err := blkdev.GetKernelLastPartitionNum()
	require.NoError(t, err)
	assert.Equal(t, 3, last)

	require.NoError(t, table.DeletePartition(2))
	require.NoError(t, table.Write())

	last, err = blkdev.GetKernelLastPartitionNum()
	require.NoError(t, err)
	assert.Equal(t, 2, last)
}
