// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ext"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/internal/testimages"
)

func TestProbe(t *testing.T) {
	buf := testimages.Load(t, testimages.Ext4)
	r := testimages.NewReader(buf)

	p4 := &ext.Probe4{}

	m, ok := magic.Match(p4.Magic(), buf)
	require.True(t, ok)

	for _, test := range []struct {
		prober  probe.Prober
		matches bool
	}{
		{prober: &ext.Probe2{}},
		{prober: &ext.Probe3{}},
		{prober: p4, matches: true},
	} {
		t.Run(test.prober.Name(), func(t *testing.T) {
			res, err := test.prober.Probe(r, m)
			require.NoError(t, err)

			if !test.matches {
				assert.Nil(t, res)

				return
			}

			require.NotNil(t, res)

			assert.Equal(t, "6d9b9c7c-8c3e-4f4a-9b1e-3a6f2d6c1e01", res.UUID)
			require.NotNil(t, res.Label)
			assert.Equal(t, "extlabel", *res.Label)
			assert.Equal(t, "1.0", res.Version)
			assert.EqualValues(t, 1024, res.BlockSize)
			assert.EqualValues(t, 1024, res.FilesystemBlockSize)
			assert.EqualValues(t, 4*1024*1024, res.ProbedSize)
		})
	}
}

func TestProbeBadChecksum(t *testing.T) {
	buf := testimages.Load(t, testimages.Ext4)

	// flip a byte of the volume name, metadata_csum no longer matches
	buf[0x400+0x78] ^= 0xff

	p4 := &ext.Probe4{}

	m, ok := magic.Match(p4.Magic(), buf)
	require.True(t, ok)

	res, err := p4.Probe(testimages.NewReader(buf), m)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.BadChecksum)
}
