// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sysfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/internal/sysfs"
	"github.com/siderolabs/go-blkid/internal/sysfs/sysfstest"
)

func TestDevNumbers(t *testing.T) {
	dev := sysfs.MakeDev(259, 1048577)

	assert.EqualValues(t, 259, sysfs.Major(dev))
	assert.EqualValues(t, 1048577, sysfs.Minor(dev))

	parsed, err := sysfs.ParseDev("8:17\n")
	require.NoError(t, err)
	assert.Equal(t, sysfs.MakeDev(8, 17), parsed)

	_, err = sysfs.ParseDev("8-17")
	require.Error(t, err)
}

func TestTree(t *testing.T) {
	tree := sysfstest.New(t)

	sda := sysfs.MakeDev(8, 0)
	sda1 := sysfs.MakeDev(8, 1)
	sdb := sysfs.MakeDev(8, 16)

	tree.AddDisk(sysfstest.Disk{Name: "sda", DevNo: sda, Sectors: 2048})
	tree.AddPartition("sda", sysfstest.Partition{Name: "sda1", DevNo: sda1, Partno: 1, Start: 34, Sectors: 100})
	tree.AddDisk(sysfstest.Disk{Name: "sdb", DevNo: sdb, Sectors: 4096, Removable: true})

	fs := tree.FS()

	names, err := fs.BlockDevices()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sda", "sda1", "sdb"}, names)

	assert.True(t, fs.IsPartition(sda1))
	assert.False(t, fs.IsPartition(sda))

	whole, err := fs.WholeDisk(sda1)
	require.NoError(t, err)
	assert.Equal(t, sda, whole)

	whole, err = fs.WholeDisk(sda)
	require.NoError(t, err)
	assert.Equal(t, sda, whole)

	_, err = fs.WholeDisk(sysfs.MakeDev(8, 32))
	require.Error(t, err)

	partno, err := fs.PartitionNumber(sda1)
	require.NoError(t, err)
	assert.Equal(t, 1, partno)

	partitions, err := fs.Partitions(sda)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, partitions)

	partitions, err = fs.Partitions(sdb)
	require.NoError(t, err)
	assert.Empty(t, partitions)

	start, err := fs.ReadUint(sda1, "start")
	require.NoError(t, err)
	assert.EqualValues(t, 34, start)

	name, err := fs.DeviceName(sda1)
	require.NoError(t, err)
	assert.Equal(t, "sda1", name)

	devNo, err := fs.DevNo("sdb")
	require.NoError(t, err)
	assert.Equal(t, sdb, devNo)

	assert.True(t, fs.IsRemovable("sdb"))
	assert.False(t, fs.IsRemovable("sda"))
	assert.False(t, fs.IsRemovable("sda1"))
	assert.Empty(t, fs.DMUUID(sda))
}
