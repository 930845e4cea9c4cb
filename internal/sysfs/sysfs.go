// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sysfs reads block device attributes from sysfs.
package sysfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultRoot is the default sysfs mount point.
const DefaultRoot = "/sys"

// FS is a view of a sysfs tree.
type FS struct {
	Root string
}

// Default returns the system sysfs.
func Default() FS {
	return FS{Root: DefaultRoot}
}

// MakeDev combines major and minor into a device number (Linux encoding).
func MakeDev(major, minor uint32) uint64 {
	return (uint64(major)&0x00000fff)<<8 |
		(uint64(major)&0xfffff000)<<32 |
		(uint64(minor)&0x000000ff)<<0 |
		(uint64(minor)&0xffffff00)<<12
}

// Major returns the major component of a device number.
func Major(dev uint64) uint32 {
	return uint32((dev&0x00000000000fff00)>>8 | (dev&0xfffff00000000000)>>32)
}

// Minor returns the minor component of a device number.
func Minor(dev uint64) uint32 {
	return uint32((dev&0x00000000000000ff)>>0 | (dev&0x00000ffffff00000)>>12)
}

// ParseDev parses "MAJ:MIN" into a device number.
func ParseDev(s string) (uint64, error) {
	maj, min, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid device number %q", s)
	}

	major, err := strconv.ParseUint(maj, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device major %q: %w", s, err)
	}

	minor, err := strconv.ParseUint(min, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device minor %q: %w", s, err)
	}

	return MakeDev(uint32(major), uint32(minor)), nil
}

// DevPath returns the /sys/dev/block path for the device number.
func (fs FS) DevPath(devNo uint64) string {
	return filepath.Join(fs.Root, "dev", "block", fmt.Sprintf("%d:%d", Major(devNo), Minor(devNo)))
}

// ClassPath returns the /sys/class/block path for the device name.
func (fs FS) ClassPath(name string) string {
	return filepath.Join(fs.Root, "class", "block", name)
}

// ReadAttr reads the trimmed contents of the attribute of the device.
func (fs FS) ReadAttr(devNo uint64, attr string) (string, error) {
	return readFile(filepath.Join(fs.DevPath(devNo), attr))
}

// ReadUint reads an unsigned integer attribute of the device.
func (fs FS) ReadUint(devNo uint64, attr string) (uint64, error) {
	return readUint(filepath.Join(fs.DevPath(devNo), attr))
}

// ReadClassUint reads an unsigned integer attribute of the named device.
func (fs FS) ReadClassUint(name, attr string) (uint64, error) {
	return readUint(filepath.Join(fs.ClassPath(name), attr))
}

// IsPartition returns true if the device is a kernel partition.
func (fs FS) IsPartition(devNo uint64) bool {
	_, err := os.Stat(filepath.Join(fs.DevPath(devNo), "partition"))

	return err == nil
}

// PartitionNumber returns the kernel partition number of the device.
func (fs FS) PartitionNumber(devNo uint64) (int, error) {
	n, err := fs.ReadUint(devNo, "partition")
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

// DMUUID returns device-mapper UUID of the device, empty if not a device-mapper device.
func (fs FS) DMUUID(devNo uint64) string {
	contents, err := fs.ReadAttr(devNo, filepath.Join("dm", "uuid"))
	if err != nil {
		return ""
	}

	return contents
}

// IsDMPartition returns true if the device is a device-mapper partition mapping.
func (fs FS) IsDMPartition(devNo uint64) bool {
	return strings.HasPrefix(fs.DMUUID(devNo), "part")
}

// WholeDisk resolves the device number of the whole disk containing the device.
//
// For whole disks the device number itself is returned.
func (fs FS) WholeDisk(devNo uint64) (uint64, error) {
	devPath := fs.DevPath(devNo)

	if fs.IsPartition(devNo) {
		resolved, err := filepath.EvalSymlinks(devPath)
		if err != nil {
			return 0, err
		}

		contents, err := readFile(filepath.Join(filepath.Dir(resolved), "dev"))
		if err != nil {
			return 0, err
		}

		return ParseDev(contents)
	}

	if fs.IsDMPartition(devNo) {
		slaves, err := os.ReadDir(filepath.Join(devPath, "slaves"))
		if err != nil {
			return 0, err
		}

		if len(slaves) == 0 {
			return 0, errors.New("no slaves found")
		}

		contents, err := readFile(filepath.Join(devPath, "slaves", slaves[0].Name(), "dev"))
		if err != nil {
			return 0, err
		}

		return ParseDev(contents)
	}

	if _, err := os.Stat(devPath); err != nil {
		return 0, err
	}

	return devNo, nil
}

// Partitions returns sorted partition numbers of the whole disk.
func (fs FS) Partitions(devNo uint64) ([]int, error) {
	entries, err := os.ReadDir(fs.DevPath(devNo))
	if err != nil {
		return nil, err
	}

	var partitions []int

	for _, entry := range entries {
		n, err := readUint(filepath.Join(fs.DevPath(devNo), entry.Name(), "partition"))
		if err != nil {
			continue
		}

		partitions = append(partitions, int(n))
	}

	slices.Sort(partitions)

	return partitions, nil
}

// DeviceName returns the kernel name of the device (e.g. "sda1").
func (fs FS) DeviceName(devNo uint64) (string, error) {
	uevent, err := os.ReadFile(filepath.Join(fs.DevPath(devNo), "uevent"))
	if err == nil {
		for _, line := range bytes.Split(uevent, []byte("\n")) {
			if name, ok := bytes.CutPrefix(line, []byte("DEVNAME=")); ok {
				return string(name), nil
			}
		}
	}

	resolved, err := filepath.EvalSymlinks(fs.DevPath(devNo))
	if err != nil {
		return "", err
	}

	return filepath.Base(resolved), nil
}

// DevNo returns the device number of the named device.
func (fs FS) DevNo(name string) (uint64, error) {
	contents, err := readFile(filepath.Join(fs.ClassPath(name), "dev"))
	if err != nil {
		return 0, err
	}

	return ParseDev(contents)
}

// BlockDevices lists the names of all block devices.
func (fs FS) BlockDevices() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.Root, "class", "block"))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names, nil
}

// IsRemovable returns true if the named device (or its whole disk) is removable media.
func (fs FS) IsRemovable(name string) bool {
	classPath := fs.ClassPath(name)

	if _, err := os.Stat(filepath.Join(classPath, "partition")); err == nil {
		resolved, err := filepath.EvalSymlinks(classPath)
		if err != nil {
			return false
		}

		classPath = filepath.Dir(resolved)
	}

	n, err := readUint(filepath.Join(classPath, "removable"))

	return err == nil && n != 0
}

func readFile(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(bytes.TrimSpace(contents)), nil
}

func readUint(path string) (uint64, error) {
	contents, err := readFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(contents, 10, 64)
}
