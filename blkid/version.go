// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import "fmt"

// Version is the libblkid release the library is compatible with.
const Version = "2.40.2"

// ReleaseDate of Version.
const ReleaseDate = "04-Jul-2024"

// ParseVersion converts a version string to a number by concatenating its digits.
//
// Parsing stops at the first character which is neither a digit nor a dot, so
// "2.39.3" is 2393 and "2.40-rc1" is 240.
func ParseVersion(version string) (int, error) {
	var (
		n      int
		digits int
	)

	for _, c := range version {
		if c == '.' {
			continue
		}

		if c < '0' || c > '9' {
			break
		}

		n = n*10 + int(c-'0')
		digits++
	}

	if digits == 0 {
		return 0, fmt.Errorf("%w: invalid version %q", ErrArgument, version)
	}

	return n, nil
}

// LibraryVersion returns the numeric version, the version string and the release date.
func LibraryVersion() (int, string, string) {
	n, _ := ParseVersion(Version) //nolint:errcheck

	return n, Version, ReleaseDate
}
