// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid"
)

func TestParseTag(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		tag string

		expectedName  string
		expectedValue string
		expectedErr   bool
	}{
		{tag: "UUID=6d9b9c7c", expectedName: "UUID", expectedValue: "6d9b9c7c"},
		{tag: `LABEL="my disk"`, expectedName: "LABEL", expectedValue: "my disk"},
		{tag: `LABEL='it"s'`, expectedName: "LABEL", expectedValue: `it"s`},
		{tag: "LABEL=", expectedName: "LABEL"},
		{tag: "LABEL", expectedErr: true},
		{tag: "=value", expectedErr: true},
		{tag: `LABEL="open`, expectedErr: true},
	} {
		t.Run(test.tag, func(t *testing.T) {
			t.Parallel()

			name, value, err := blkid.ParseTag(test.tag)
			if test.expectedErr {
				require.ErrorIs(t, err, blkid.ErrArgument)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedName, name)
			assert.Equal(t, test.expectedValue, value)
		})
	}
}

func TestSafeString(t *testing.T) {
	t.Parallel()

	for in, expected := range map[string]string{
		"":                "",
		"  my \t label\n": "my_label",
		"boot/efi":        "boot/efi",
		"a$b*c":           "a_b_c",
		"héllo wörld":     "héllo_wörld",
		"bad\xffbyte":     "bad_byte",
		"x#+-.:=@_y":      "x#+-.:=@_y",
	} {
		assert.Equal(t, expected, blkid.SafeString(in), in)
	}
}

func TestEncodeString(t *testing.T) {
	t.Parallel()

	for in, expected := range map[string]string{
		"":         "",
		"my label": `my\x20label`,
		"boot/efi": `boot\x2fefi`,
		"héllo":    "héllo",
		"bad\xff":  `bad\xff`,
	} {
		assert.Equal(t, expected, blkid.EncodeString(in), in)
	}
}

func TestKnownTypes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ext4", "xfs", "vfat", "swap", "crypto_LUKS", "LVM2_member", "zfs_member"} {
		assert.True(t, blkid.KnownFilesystemType(name), name)
		assert.False(t, blkid.KnownPartitionTableType(name), name)
	}

	for _, name := range []string{"dos", "gpt"} {
		assert.True(t, blkid.KnownPartitionTableType(name), name)
		assert.False(t, blkid.KnownFilesystemType(name), name)
	}

	assert.False(t, blkid.KnownFilesystemType("ntfs"))
	assert.False(t, blkid.KnownPartitionTableType("bsd"))
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	for in, expected := range map[string]int{
		"2.39.3":   2393,
		"2.40-rc1": 240,
		"1":        1,
	} {
		n, err := blkid.ParseVersion(in)
		require.NoError(t, err)
		assert.Equal(t, expected, n, in)
	}

	_, err := blkid.ParseVersion("v2")
	require.ErrorIs(t, err, blkid.ErrArgument)

	n, version, date := blkid.LibraryVersion()
	assert.Equal(t, 2402, n)
	assert.Equal(t, blkid.Version, version)
	assert.Equal(t, blkid.ReleaseDate, date)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	caps, err := blkid.CapabilitiesForVersion("2.30")
	require.NoError(t, err)
	assert.Equal(t, blkid.CapSectorSize, caps)

	caps, err = blkid.CapabilitiesForVersion("2.37.4")
	require.NoError(t, err)
	assert.True(t, caps.Has(blkid.CapHideRange|blkid.CapDAX))
	assert.False(t, caps.Has(blkid.CapWipeAll))

	caps, err = blkid.CapabilitiesForVersion("2.29")
	require.NoError(t, err)
	assert.Zero(t, caps)
	assert.Empty(t, caps.String())

	_, err = blkid.CapabilitiesForVersion("latest")
	require.ErrorIs(t, err, blkid.ErrArgument)

	assert.Equal(t, "sector-size,reset-buffers,hide-range,dax,wipe-all", blkid.SupportedCapabilities().String())
}
