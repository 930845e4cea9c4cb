// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package blkid_test

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/internal/looptest"
)

func requireTool(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s is not available", name)
	}
}

func run(t *testing.T, name string, args ...string) {
	t.Helper()

	requireTool(t, name)

	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	require.NoError(t, cmd.Run())
}

func xfsSetup(t *testing.T, path string) {
	t.Helper()

	run(t, "mkfs.xfs", "--unsupported", "-L", "somelabel", path)
}

func extfsSetup(t *testing.T, path string) {
	t.Helper()

	run(t, "mkfs.ext4", "-L", "extlabel", path)
}

func vfatSetup(t *testing.T, path string) {
	t.Helper()

	run(t, "mkfs.vfat", "-v", path)
}

func luksSetup(t *testing.T, path string) {
	t.Helper()

	run(t, "cryptsetup", "luksFormat", "--label", "cryptlabel", "--key-file", "/dev/urandom", "--keyfile-size", "32", path)
}

func isoSetup(useJoilet bool) func(t *testing.T, path string) {
	return func(t *testing.T, path string) {
		t.Helper()

		require.NoError(t, os.Remove(path))

		contents := t.TempDir()

		require.NoError(t, os.WriteFile(filepath.Join(contents, "fileA"), make([]byte, 1024*1024), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(contents, "fileB"), make([]byte, 1024), 0o644))

		args := []string{"-o", path, "-V", "ISO label", "-input-charset", "utf-8"}
		if useJoilet {
			args = append(args, "-J", "-R")
		}

		run(t, "mkisofs", append(args, contents)...)
	}
}

func swapSetup(pageSize, label string) func(t *testing.T, path string) {
	return func(t *testing.T, path string) {
		t.Helper()

		run(t, "mkswap", "--label", label, "-p", pageSize, path)
	}
}

func lvm2Setup(t *testing.T, path string) {
	t.Helper()

	run(t, "pvcreate", "-v", path)
}

func squashfsSetup(t *testing.T, path string) {
	t.Helper()

	contents := t.TempDir()

	for name, size := range map[string]int64{"fileA": 1024 * 1024, "fileB": 1024} {
		f, err := os.Create(filepath.Join(contents, name))
		require.NoError(t, err)

		_, err = io.Copy(f, io.LimitReader(rand.Reader, size))
		require.NoError(t, err)

		require.NoError(t, f.Close())
	}

	run(t, "mksquashfs", contents, path, "-all-root", "-noappend", "-no-progress", "-no-compression")
}

func talosmetaSetup(t *testing.T, path string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)

	metaSlice := make([]byte, 256*1024)
	binary.BigEndian.PutUint32(metaSlice, 0x5a4b3c2d)
	binary.BigEndian.PutUint32(metaSlice[len(metaSlice)-4:], 0xa5b4c3d2)

	_, err = f.Write(metaSlice)
	require.NoError(t, err)

	_, err = f.Write(metaSlice)
	require.NoError(t, err)

	require.NoError(t, f.Close())
}

//nolint:gocognit
func TestProbeFilesystems(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name string

		noLoop   bool
		loopOnly bool

		size  uint64
		setup func(*testing.T, string)

		expectedType      string
		expectedUsage     string
		expectedLabel     string
		expectUUID        bool
		expectedUUIDRegex *regexp.Regexp

		expectedBlockSize []string
	}{
		{
			name: "xfs",

			size:  500 * MiB,
			setup: xfsSetup,

			expectedType:  "xfs",
			expectedUsage: "filesystem",
			expectedLabel: "somelabel",
			expectUUID:    true,

			expectedBlockSize: []string{"512"},
		},
		{
			name: "extfs",

			size:  500 * MiB,
			setup: extfsSetup,

			expectedType:  "ext4",
			expectedUsage: "filesystem",
			expectedLabel: "extlabel",
			expectUUID:    true,

			expectedBlockSize: []string{"1024", "4096"},
		},
		{
			name: "vfat small",

			size:  100 * MiB,
			setup: vfatSetup,

			expectedType:  "vfat",
			expectedUsage: "filesystem",
			expectUUID:    true,

			expectedBlockSize: []string{"512"},
		},
		{
			name: "vfat big",

			size:  500 * MiB,
			setup: vfatSetup,

			expectedType:  "vfat",
			expectedUsage: "filesystem",
			expectUUID:    true,

			expectedBlockSize: []string{"512"},
		},
		{
			name: "luks",

			size:  500 * MiB,
			setup: luksSetup,

			expectedType:  "crypto_LUKS",
			expectedUsage: "crypto",
			expectedLabel: "cryptlabel",
			expectUUID:    true,
		},
		{
			name:   "iso",
			noLoop: true,

			setup: isoSetup(false),

			expectedType:  "iso9660",
			expectedUsage: "filesystem",
			expectedLabel: "ISO label",

			expectedBlockSize: []string{"2048"},
		},
		{
			name:   "iso joilet",
			noLoop: true,

			setup: isoSetup(true),

			expectedType:  "iso9660",
			expectedUsage: "filesystem",
			expectedLabel: "ISO label",

			expectedBlockSize: []string{"2048"},
		},
		{
			name: "swap 8k",

			size:  500 * MiB,
			setup: swapSetup("8192", "swaplabel"),

			expectedType:  "swap",
			expectedUsage: "other",
			expectedLabel: "swaplabel",
			expectUUID:    true,

			expectedBlockSize: []string{"8192"},
		},
		{
			name: "swap 4k",

			size:  500 * MiB,
			setup: swapSetup("4096", "swapswap"),

			expectedType:  "swap",
			expectedUsage: "other",
			expectedLabel: "swapswap",
			expectUUID:    true,

			expectedBlockSize: []string{"4096"},
		},
		{
			name:     "lvm2-pv",
			loopOnly: true,

			size:  500 * MiB,
			setup: lvm2Setup,

			expectedType:      "LVM2_member",
			expectedUsage:     "raid",
			expectedUUIDRegex: regexp.MustCompile(`^[0-9a-zA-Z]{6}-[0-9a-zA-Z]{4}-[0-9a-zA-Z]{4}-[0-9a-zA-Z]{4}-[0-9a-zA-Z]{4}-[0-9a-zA-Z]{4}-[0-9a-zA-Z]{6}$`),
		},
		{
			name:   "squashfs",
			noLoop: true,

			setup: squashfsSetup,

			expectedType:  "squashfs",
			expectedUsage: "filesystem",

			expectedBlockSize: []string{"131072"},
		},
		{
			name: "talosmeta",

			size:  2 * 256 * 1024,
			setup: talosmetaSetup,

			expectedType:  "talosmeta",
			expectedUsage: "other",
		},
	} {
		for _, useLoopDevice := range []bool{false, true} {
			t.Run(fmt.Sprintf("loop=%v", useLoopDevice), func(t *testing.T) {
				t.Run(test.name, func(t *testing.T) {
					if useLoopDevice {
						looptest.SkipIfNotRoot(t)
					}

					if useLoopDevice && test.noLoop {
						t.Skip("test does not support loop devices")
					}

					if !useLoopDevice && test.loopOnly {
						t.Skip("test does not support running without loop devices")
					}

					rawImage := looptest.CreateImage(t, test.size)

					probePath := rawImage

					if useLoopDevice {
						probePath = looptest.Attach(t, rawImage, false).Path()
					}

					test.setup(t, probePath)

					p := bindProbe(t, probePath, os.O_RDONLY)

					p.SetSuperblocksFlags(blkid.SuperblockDefault | blkid.SuperblockUsage)

					outcome, err := p.ProbeSafe()
					require.NoError(t, err)
					require.Equal(t, blkid.OutcomeMatch, outcome)

					values := p.Values()

					typ, _ := values.Lookup("TYPE")
					assert.Equal(t, test.expectedType, typ)

					usage, _ := values.Lookup("USAGE")
					assert.Equal(t, test.expectedUsage, usage)

					label, ok := values.Lookup("LABEL")
					if test.expectedLabel != "" {
						assert.True(t, ok)
						assert.Equal(t, test.expectedLabel, label)
					} else {
						assert.False(t, ok)
					}

					id, ok := values.Lookup("UUID")

					switch {
					case test.expectedUUIDRegex != nil:
						assert.True(t, ok)
						assert.Regexp(t, test.expectedUUIDRegex, id)
					case test.expectUUID:
						assert.True(t, ok)
						t.Logf("UUID: %s", id)
					}

					if test.expectedBlockSize != nil {
						blockSize, _ := values.Lookup("BLOCK_SIZE")
						assert.Contains(t, test.expectedBlockSize, blockSize)
					}

					if useLoopDevice {
						assert.NotZero(t, p.DevNo())
						assert.True(t, p.IsWholeDisk())
						assert.Equal(t, p.DevNo(), p.WholeDiskDevNo())
					} else {
						assert.Zero(t, p.DevNo())
					}

					if test.size != 0 {
						assert.EqualValues(t, test.size, p.Size())
					}
				})
			})
		}
	}
}
