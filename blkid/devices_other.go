// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package blkid

import (
	"fmt"
	"os"
)

// DeviceSize returns the size of the regular file in bytes.
func DeviceSize(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, ioError("stat", err)
	}

	if !st.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: block devices are supported only on Linux", ErrUnsupported)
	}

	return uint64(st.Size()), nil
}

// PathToDevno is not supported.
func PathToDevno(string) (uint64, error) {
	return 0, ErrUnsupported
}

// DevnoToPath is not supported.
func DevnoToPath(uint64) (string, error) {
	return "", ErrUnsupported
}

// DevnoToWholeDisk is not supported.
func DevnoToWholeDisk(uint64) (string, uint64, error) {
	return "", 0, ErrUnsupported
}
