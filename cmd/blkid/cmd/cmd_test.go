// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/internal/looptest"
	"github.com/siderolabs/go-blkid/internal/testimages"
	"github.com/siderolabs/go-blkid/partitioning/gpt"
)

func TestParseTypes(t *testing.T) {
	for _, test := range []struct {
		name string
		list []string

		expectedMode  blkid.FilterMode
		expectedTypes []string
		expectedErr   string
	}{
		{
			name:         "empty",
			expectedMode: blkid.FilterOnlyIn,
		},
		{
			name:          "only in",
			list:          []string{"ext4", "xfs"},
			expectedMode:  blkid.FilterOnlyIn,
			expectedTypes: []string{"ext4", "xfs"},
		},
		{
			name:          "not in",
			list:          []string{"noext4", "noswap"},
			expectedMode:  blkid.FilterNotIn,
			expectedTypes: []string{"ext4", "swap"},
		},
		{
			name:        "mixed",
			list:        []string{"noext4", "xfs"},
			expectedErr: `type "xfs" is mixed with negated types`,
		},
		{
			name:        "unknown",
			list:        []string{"ntfs"},
			expectedErr: `unknown filesystem type "ntfs"`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mode, types, err := parseTypes(test.list)

			if test.expectedErr != "" {
				require.EqualError(t, err, test.expectedErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedMode, mode)
			assert.Equal(t, test.expectedTypes, types)
		})
	}
}

func TestParseChains(t *testing.T) {
	chains, err := parseChains([]string{"topology", "superblocks"})
	require.NoError(t, err)
	assert.Equal(t, []blkid.Chain{blkid.ChainTopology, blkid.ChainSuperblocks}, chains)

	_, err = parseChains([]string{"filesystems"})
	require.EqualError(t, err, `unknown chain "filesystems"`)
}

func TestPrintValues(t *testing.T) {
	tags := []blkid.Tag{
		{Name: "LABEL", Value: "my label"},
		{Name: "TYPE", Value: "ext4"},
	}

	for output, expected := range map[string]string{
		"full":   "/dev/sda1: LABEL=\"my label\" TYPE=\"ext4\"\n",
		"export": "DEVNAME=/dev/sda1\nLABEL=my_label\nTYPE=ext4\n\n",
		"value":  "my label\next4\n",
	} {
		var buf bytes.Buffer

		require.NoError(t, printValues(&buf, "/dev/sda1", tags, output))
		assert.Equal(t, expected, buf.String(), output)
	}

	require.Error(t, printValues(&bytes.Buffer{}, "/dev/sda1", tags, "json"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	resetFlags(rootCmd)

	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)

		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()

	return buf.String(), err
}

// resetFlags restores flag defaults, as flag values survive between executions.
func resetFlags(cmd *cobra.Command) {
	for _, flags := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
		flags.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				var values []string

				if trimmed := strings.Trim(f.DefValue, "[]"); trimmed != "" {
					values = strings.Split(trimmed, ",")
				}

				sv.Replace(values) //nolint:errcheck
			} else {
				f.Value.Set(f.DefValue) //nolint:errcheck
			}

			f.Changed = false
		})
	}

	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestCommands(t *testing.T) {
	image := filepath.Join(t.TempDir(), "ext4.img")
	testimages.WriteAt(t, image, testimages.Ext4, 0)

	original, err := os.ReadFile(image)
	require.NoError(t, err)

	out, err := execute(t, "probe", "--safe", image)
	require.NoError(t, err)

	assert.Contains(t, out, image+": ")
	assert.Contains(t, out, ` LABEL="extlabel"`)
	assert.Contains(t, out, ` TYPE="ext4"`)
	assert.Contains(t, out, ` USAGE="filesystem"`)

	_, err = execute(t, "parts", image)
	require.ErrorIs(t, err, ErrNoMatch)

	out, err = execute(t, "topology", image)
	require.NoError(t, err)
	assert.Contains(t, out, "4.0 MiB")

	out, err = execute(t, "wipe", "--dry-run", image)
	require.NoError(t, err)

	assert.Contains(t, out, image+": ext4 signature at offset 1080\n")
	assert.Contains(t, out, image+": 1 signatures wiped\n")

	current, err := os.ReadFile(image)
	require.NoError(t, err)
	assert.Equal(t, original, current)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, blkid.Version)
}

func TestParsePartitionSpecs(t *testing.T) {
	specs, err := parsePartitionSpecs([]string{"EFI:100MiB:efi", "BOOT:1GB", "DATA:rest:" + gpt.TypeLinuxLVM.String()})
	require.NoError(t, err)

	assert.Equal(t, []partitionSpec{
		{name: "EFI", size: 100 * looptest.MiB, typ: gpt.TypeEFISystem},
		{name: "BOOT", size: 1000 * 1000 * 1000, typ: gpt.TypeLinuxData},
		{name: "DATA", typ: gpt.TypeLinuxLVM},
	}, specs)

	for spec, expected := range map[string]string{
		"EFI":            `invalid partition "EFI", expected NAME:SIZE[:TYPE]`,
		"EFI:0":          `partition "EFI": size can't be zero`,
		"EFI:10MiB:ntfs": `partition "EFI": unknown partition type "ntfs"`,
		"EFI:a:b:c":      `invalid partition "EFI:a:b:c", expected NAME:SIZE[:TYPE]`,
	} {
		_, err = parsePartitionSpecs([]string{spec})
		require.EqualError(t, err, expected, spec)
	}

	_, err = parsePartitionSpecs([]string{"A:rest", "B:1MiB"})
	require.EqualError(t, err, `partition "A": only the last partition can take the rest of the disk`)
}

func TestMkgptWipe(t *testing.T) {
	image := looptest.CreateImage(t, 64*looptest.MiB)
	diskGUID := uuid.MustParse("6b9a6d1c-2c2f-4bfb-9c9e-3f6d0b6c0d6e")

	out, err := execute(t, "mkgpt", "--disk-guid", diskGUID.String(), "-p", "EFI:10MiB:efi", "-p", "DATA:rest", image)
	require.NoError(t, err)

	assert.Contains(t, out, image+": gpt partition table "+diskGUID.String()+"\n")
	assert.Contains(t, out, "10 MiB")
	assert.Contains(t, out, gpt.TypeEFISystem.String())

	out, err = execute(t, "parts", image)
	require.NoError(t, err)

	assert.Contains(t, out, image+": gpt partition table "+diskGUID.String()+"\n")
	assert.Contains(t, out, "EFI")
	assert.Contains(t, out, "DATA")

	out, err = execute(t, "wipe", "--fast", image)
	require.NoError(t, err)
	assert.Equal(t, image+": fast wiped\n", out)

	_, err = execute(t, "parts", image)
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = execute(t, "wipe", "--fast", "--full", image)
	require.Error(t, err)
}
