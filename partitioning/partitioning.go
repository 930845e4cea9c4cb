// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partitioning provides helpers shared by partition table writers.
package partitioning

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DevName returns the path of the partition number part on the disk device.
//
// Kernel names ending with a digit get a "p" separator (nvme0n1p1, loop0p1),
// udev /dev/disk/by-* links use the "-part" suffix.
func DevName(device string, part uint) string {
	n := strconv.FormatUint(uint64(part), 10)

	if strings.HasPrefix(filepath.Dir(device), "/dev/disk/by-") {
		return device + "-part" + n
	}

	if device != "" && device[len(device)-1] >= '0' && device[len(device)-1] <= '9' {
		return device + "p" + n
	}

	return device + n
}
