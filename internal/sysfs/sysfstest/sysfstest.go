// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sysfstest builds fake sysfs trees for tests.
package sysfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// Tree is a fake sysfs tree rooted in a temporary directory.
type Tree struct {
	t    testing.TB
	root string
}

// New creates an empty tree.
func New(t testing.TB) *Tree {
	t.Helper()

	root := t.TempDir()

	for _, dir := range []string{"class/block", "dev/block", "devices/virtual/block"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	return &Tree{t: t, root: root}
}

// FS returns the sysfs view of the tree.
func (tree *Tree) FS() sysfs.FS {
	return sysfs.FS{Root: tree.root}
}

// Disk describes a fake whole disk.
type Disk struct {
	Name      string
	DevNo     uint64
	Sectors   uint64
	Removable bool
}

// Partition describes a fake kernel partition.
type Partition struct {
	Name    string
	DevNo   uint64
	Partno  int
	Start   uint64
	Sectors uint64
}

// AddDisk adds a whole disk.
func (tree *Tree) AddDisk(disk Disk) {
	tree.t.Helper()

	dir := filepath.Join(tree.root, "devices", "virtual", "block", disk.Name)

	removable := "0"
	if disk.Removable {
		removable = "1"
	}

	tree.writeDevice(dir, disk.Name, disk.DevNo, map[string]string{
		"size":      strconv.FormatUint(disk.Sectors, 10),
		"removable": removable,
		"ro":        "0",
	})
}

// AddPartition adds a partition to the disk.
func (tree *Tree) AddPartition(disk string, part Partition) {
	tree.t.Helper()

	dir := filepath.Join(tree.root, "devices", "virtual", "block", disk, part.Name)

	tree.writeDevice(dir, part.Name, part.DevNo, map[string]string{
		"partition": strconv.Itoa(part.Partno),
		"start":     strconv.FormatUint(part.Start, 10),
		"size":      strconv.FormatUint(part.Sectors, 10),
		"ro":        "0",
	})
}

func (tree *Tree) writeDevice(dir, name string, devNo uint64, attrs map[string]string) {
	tree.t.Helper()

	require.NoError(tree.t, os.MkdirAll(dir, 0o755))

	attrs["dev"] = fmt.Sprintf("%d:%d", sysfs.Major(devNo), sysfs.Minor(devNo))
	attrs["uevent"] = fmt.Sprintf("MAJOR=%d\nMINOR=%d\nDEVNAME=%s\n", sysfs.Major(devNo), sysfs.Minor(devNo), name)

	for attr, value := range attrs {
		require.NoError(tree.t, os.WriteFile(filepath.Join(dir, attr), []byte(value+"\n"), 0o644))
	}

	require.NoError(tree.t, os.Symlink(dir, filepath.Join(tree.root, "class", "block", name)))
	require.NoError(tree.t, os.Symlink(dir, filepath.Join(tree.root, "dev", "block", attrs["dev"])))
}
