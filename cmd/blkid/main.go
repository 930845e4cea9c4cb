// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements the blkid command line tool.
package main

import (
	"errors"
	"os"

	"github.com/siderolabs/go-blkid/cmd/blkid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrNoMatch) {
			os.Exit(2)
		}

		os.Exit(1)
	}
}
