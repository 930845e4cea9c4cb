// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-blkid/block"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

const devDir = "/dev"

// devnoPaths memoizes DevnoToPath, entries are verified on use.
var devnoPaths = cache.New(time.Minute, 5*time.Minute)

// DeviceSize returns the size of the block device or regular file in bytes.
func DeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, ioError("open", err)
	}

	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return 0, ioError("stat", err)
	}

	switch {
	case st.Mode()&fs.ModeDevice != 0 && st.Mode()&fs.ModeCharDevice == 0:
		size, err := block.NewFromFile(f).GetSize()
		if err != nil {
			return 0, ioError("failed to get block device size", err)
		}

		return size, nil
	case st.Mode().IsRegular():
		return uint64(st.Size()), nil
	default:
		return 0, fmt.Errorf("%w: unsupported file type %s", ErrArgument, st.Mode().Type())
	}
}

// PathToDevno returns the device number of the block device at path.
func PathToDevno(path string) (uint64, error) {
	var st unix.Stat_t

	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return 0, ioError("stat", err)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 0, fmt.Errorf("%w: %s is not a block device", ErrArgument, path)
	}

	return uint64(st.Rdev), nil //nolint:unconvert
}

func isDevnoPath(path string, devNo uint64) bool {
	actual, err := PathToDevno(path)

	return err == nil && actual == devNo
}

// DevnoToPath returns the path of the block device node with the device number.
func DevnoToPath(devNo uint64) (string, error) {
	key := strconv.FormatUint(devNo, 10)

	if cached, ok := devnoPaths.Get(key); ok {
		if path := cached.(string); isDevnoPath(path, devNo) { //nolint:forcetypeassert
			return path, nil
		}

		devnoPaths.Delete(key)
	}

	path, err := lookupDevnoPath(sysfs.Default(), devDir, devNo)
	if err != nil {
		return "", err
	}

	devnoPaths.SetDefault(key, path)

	return path, nil
}

func lookupDevnoPath(sys sysfs.FS, dir string, devNo uint64) (string, error) {
	// fast path: kernel name
	if name, err := sys.DeviceName(devNo); err == nil {
		candidates := []string{filepath.Join(dir, name)}

		if dmName, err := sys.ReadAttr(devNo, filepath.Join("dm", "name")); err == nil && dmName != "" {
			candidates = append([]string{filepath.Join(dir, "mapper", dmName)}, candidates...)
		}

		for _, candidate := range candidates {
			if isDevnoPath(candidate, devNo) {
				return candidate, nil
			}
		}
	}

	var found string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// unreadable directories are skipped
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Type()&os.ModeDevice == 0 || d.Type()&os.ModeCharDevice != 0 {
			return nil
		}

		if isDevnoPath(path, devNo) {
			found = path

			return filepath.SkipAll
		}

		return nil
	})
	if err != nil {
		return "", ioError("walk "+dir, err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: no device node for %d:%d", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo))
	}

	return found, nil
}

// DevnoToWholeDisk returns the kernel name and the device number of the whole disk containing the device.
func DevnoToWholeDisk(devNo uint64) (string, uint64, error) {
	sys := sysfs.Default()

	wholeDevNo, err := sys.WholeDisk(devNo)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("%w: device %d:%d", ErrNotFound, sysfs.Major(devNo), sysfs.Minor(devNo))
		}

		return "", 0, ioError("failed to resolve whole disk", err)
	}

	name, err := sys.DeviceName(wholeDevNo)
	if err != nil {
		return "", 0, ioError("failed to resolve device name", err)
	}

	return name, wholeDevNo, nil
}
