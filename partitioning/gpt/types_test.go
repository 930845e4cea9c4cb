// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/partitioning/gpt"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		in       string
		expected uuid.UUID
	}{
		{"linux", gpt.TypeLinuxData},
		{"EFI", gpt.TypeEFISystem},
		{"esp", gpt.TypeEFISystem},
		{"swap", gpt.TypeLinuxSwap},
		{"bios", gpt.TypeBIOSBoot},
		{"e6d6d379-f507-44c2-a23c-238f2a3df928", gpt.TypeLinuxLVM},
	} {
		typ, err := gpt.ParseType(test.in)
		require.NoError(t, err)
		assert.Equal(t, test.expected, typ, test.in)
	}

	_, err := gpt.ParseType("ntfs")
	require.EqualError(t, err, `unknown partition type "ntfs"`)
}
