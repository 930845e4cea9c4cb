// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

// Package looptest attaches loop devices in tests.
package looptest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/freddierice/go-losetup/v2"
	"github.com/siderolabs/go-retry/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Sizes.
const (
	MiB = 1024 * 1024
	GiB = 1024 * MiB
)

// SkipIfNotRoot skips the test unless running as root.
func SkipIfNotRoot(t testing.TB) {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}
}

// CreateImage creates a sparse image file of the given size in a temporary directory.
func CreateImage(t testing.TB, size uint64) string {
	t.Helper()

	rawImage := filepath.Join(t.TempDir(), "image.raw")

	f, err := os.Create(rawImage)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(int64(size)))
	require.NoError(t, f.Close())

	return rawImage
}

// Attach the image to a loop device, detached on test cleanup.
//
// Attaching is retried while the loop device is busy.
func Attach(t testing.TB, rawImage string, readonly bool) losetup.Device {
	t.Helper()

	var loDev losetup.Device

	err := retry.Constant(10*time.Second, retry.WithUnits(100*time.Millisecond), retry.WithJitter(50*time.Millisecond)).Retry(func() error {
		var err error

		loDev, err = losetup.Attach(rawImage, 0, readonly)
		if errors.Is(err, unix.EBUSY) {
			return retry.ExpectedError(err)
		}

		return err
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, loDev.Detach())
	})

	return loDev
}
