// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/siderolabs/gen/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/cache"
	"github.com/siderolabs/go-blkid/internal/sysfs"
	"github.com/siderolabs/go-blkid/internal/sysfs/sysfstest"
	"github.com/siderolabs/go-blkid/internal/testimages"
)

const (
	extUUID  = "6d9b9c7c-8c3e-4f4a-9b1e-3a6f2d6c1e01"
	swapUUID = "0f0e0d0c-0b0a-4908-8706-050403020100"
)

type fixture struct {
	tree   *sysfstest.Tree
	devDir string
}

// newFixture builds a fake system with the following block devices:
//
//	sda:  ext4
//	sdb:  swap, removable
//	ram0: swap, excluded by name
//	sdc:  zero size
//	sdd:  no device node
func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		tree:   sysfstest.New(t),
		devDir: t.TempDir(),
	}

	f.tree.AddDisk(sysfstest.Disk{Name: "sda", DevNo: sysfs.MakeDev(8, 0), Sectors: 8192})
	f.tree.AddDisk(sysfstest.Disk{Name: "sdb", DevNo: sysfs.MakeDev(8, 16), Sectors: 2048, Removable: true})
	f.tree.AddDisk(sysfstest.Disk{Name: "ram0", DevNo: sysfs.MakeDev(1, 0), Sectors: 2048})
	f.tree.AddDisk(sysfstest.Disk{Name: "sdc", DevNo: sysfs.MakeDev(8, 32)})
	f.tree.AddDisk(sysfstest.Disk{Name: "sdd", DevNo: sysfs.MakeDev(8, 48), Sectors: 8192})

	testimages.WriteAt(t, f.path("sda"), testimages.Ext4, 0)
	testimages.WriteAt(t, f.path("sdb"), testimages.Swap, 0)
	testimages.WriteAt(t, f.path("ram0"), testimages.Swap, 0)
	require.NoError(t, os.WriteFile(f.path("sdc"), nil, 0o644))

	return f
}

func (f fixture) path(name string) string {
	return filepath.Join(f.devDir, name)
}

func (f fixture) open(t *testing.T, path string, opts ...cache.Option) *cache.Cache {
	t.Helper()

	if path == "" {
		path = filepath.Join(t.TempDir(), "blkid.json")
	}

	c, err := cache.Open(path, append([]cache.Option{
		cache.WithLogger(zaptest.NewLogger(t)),
		cache.WithSysFSRoot(f.tree.FS().Root),
		cache.WithDevDir(f.devDir),
	}, opts...)...)
	require.NoError(t, err)

	return c
}

func writeCacheFile(t *testing.T, doc string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blkid.json")

	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	return path
}

func deviceNames(c *cache.Cache) []string {
	return xslices.Map(slices.Collect(c.Devices()), (*cache.Device).Name)
}

func tags(d *cache.Device) []blkid.Tag {
	var result []blkid.Tag

	for name, value := range d.Tags() {
		result = append(result, blkid.Tag{Name: name, Value: value})
	}

	return result
}

func TestOpen(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		doc  string

		expectedErr error
		expectedLen int
	}{
		{
			name: "empty file",
		},
		{
			name: "no devices",
			doc:  `{}`,
		},
		{
			name:        "devices",
			doc:         `{"devices":[{"name":"/dev/sda1","tags":[{"name":"TYPE","value":"ext4"}]},{"name":"/dev/sda2"}]}`,
			expectedLen: 2,
		},
		{
			name:        "not json",
			doc:         `{"devices":[`,
			expectedErr: blkid.ErrIO,
		},
		{
			name:        "devices not a list",
			doc:         `{"devices":{}}`,
			expectedErr: blkid.ErrIO,
		},
		{
			name:        "device without a name",
			doc:         `{"devices":[{"devno":"8:1"}]}`,
			expectedErr: blkid.ErrIO,
		},
		{
			name:        "bad device number",
			doc:         `{"devices":[{"name":"/dev/sda1","devno":"8"}]}`,
			expectedErr: blkid.ErrIO,
		},
		{
			name:        "bad time",
			doc:         `{"devices":[{"name":"/dev/sda1","verified":"yesterday"}]}`,
			expectedErr: blkid.ErrIO,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			c, err := cache.Open(writeCacheFile(t, test.doc))

			if test.expectedErr != nil {
				require.ErrorIs(t, err, test.expectedErr)

				return
			}

			require.NoError(t, err)

			assert.Equal(t, test.expectedLen, c.Len())
			assert.False(t, c.Dirty())
		})
	}
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "blkid.json")

	c, err := cache.Open(path)
	require.NoError(t, err)

	assert.Equal(t, path, c.Path())
	assert.Zero(t, c.Len())
	assert.False(t, c.Dirty())

	// nothing is written until the cache is saved
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blkid.json")

	t.Setenv(cache.PathEnv, path)

	c, err := cache.Open("")
	require.NoError(t, err)

	assert.Equal(t, path, c.Path())
}

func TestSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "run", "blkid.json")

	c := f.open(t, path)

	require.NoError(t, c.ScanAll(true))
	assert.True(t, c.Dirty())

	require.NoError(t, c.Save())
	assert.False(t, c.Dirty())

	doc, err := os.ReadFile(path)
	require.NoError(t, err)

	require.True(t, gjson.ValidBytes(doc))
	assert.EqualValues(t, 2, gjson.GetBytes(doc, "devices.#").Int())
	assert.Equal(t, f.path("sda"), gjson.GetBytes(doc, "devices.0.name").String())
	assert.Equal(t, "8:0", gjson.GetBytes(doc, "devices.0.devno").String())
	assert.Equal(t, "LABEL", gjson.GetBytes(doc, "devices.0.tags.0.name").String())
	assert.Equal(t, "extlabel", gjson.GetBytes(doc, "devices.0.tags.0.value").String())

	reopened := f.open(t, path)

	require.Equal(t, deviceNames(c), deviceNames(reopened))

	for d := range c.Devices() {
		loaded, err := reopened.FindByPath(d.Name())
		require.NoError(t, err)

		assert.Equal(t, d.DevNo(), loaded.DevNo())
		assert.Equal(t, d.Priority(), loaded.Priority())
		assert.True(t, d.Verified().Equal(loaded.Verified()))
		assert.Equal(t, tags(d), tags(loaded))
	}

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFindByTag(t *testing.T) {
	t.Parallel()

	c, err := cache.Open(writeCacheFile(t, `{"devices":[
		{"name":"/dev/sda1","verified":"2024-01-01T00:00:00Z","tags":[{"name":"LABEL","value":"data"}]},
		{"name":"/dev/sdc1","verified":"2024-06-01T00:00:00Z","tags":[{"name":"LABEL","value":"data"}]},
		{"name":"/dev/sdb1","verified":"2024-06-01T00:00:00Z","tags":[{"name":"LABEL","value":"data"}]},
		{"name":"/dev/md0","verified":"2024-06-01T00:00:00Z","tags":[{"name":"LABEL","value":"raid"}]},
		{"name":"/dev/dm-0","verified":"2024-01-01T00:00:00Z","tags":[{"name":"LABEL","value":"raid"}]},
		{"name":"/dev/mapper/root","tags":[{"name":"LABEL","value":"root"}]},
		{"name":"/dev/sdd1","priority":50,"tags":[{"name":"LABEL","value":"root"}]}
	]}`))
	require.NoError(t, err)

	for _, test := range []struct {
		tag   string
		value string

		expected string
	}{
		// most recently verified, then by path
		{tag: "LABEL", value: "data", expected: "/dev/sdb1"},
		// device-mapper before md
		{tag: "LABEL", value: "raid", expected: "/dev/dm-0"},
		// stored priority is kept
		{tag: "LABEL", value: "root", expected: "/dev/sdd1"},
	} {
		d, err := c.FindByTag(test.tag, test.value)
		require.NoError(t, err)

		assert.Equal(t, test.expected, d.Name(), "%s=%s", test.tag, test.value)
	}

	_, err = c.FindByTag("LABEL", "missing")
	require.ErrorIs(t, err, blkid.ErrNotFound)

	_, err = c.FindByTag("UUID", "data")
	require.ErrorIs(t, err, blkid.ErrNotFound)

	for name, priority := range map[string]int{
		"/dev/sda1":        0,
		"/dev/md0":         10,
		"/dev/dm-0":        40,
		"/dev/mapper/root": 40,
		"/dev/sdd1":        50,
	} {
		d, err := c.FindByPath(name)
		require.NoError(t, err)

		assert.Equal(t, priority, d.Priority(), name)
	}

	_, err = c.FindByPath("/dev/sde")
	require.ErrorIs(t, err, blkid.ErrNotFound)

	assert.False(t, c.Dirty())
}

func TestDevices(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := filepath.Join(dir, "sda")
	blocked := filepath.Join(existing, "sda1")
	missing := filepath.Join(dir, "sdb")

	require.NoError(t, os.WriteFile(existing, nil, 0o644))

	c, err := cache.Open(writeCacheFile(t, `{"devices":[
		{"name":"`+existing+`"},
		{"name":"`+missing+`"},
		{"name":"`+blocked+`"}
	]}`), cache.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	devices := c.Devices()

	// the sequence is restartable
	assert.Equal(t, []string{existing, missing, blocked}, xslices.Map(slices.Collect(devices), (*cache.Device).Name))
	assert.Equal(t, []string{existing, missing, blocked}, xslices.Map(slices.Collect(devices), (*cache.Device).Name))

	// only the device which doesn't exist is removed, the one which can't be checked is kept
	assert.Equal(t, 1, c.GarbageCollect())
	assert.True(t, c.Dirty())
	assert.Equal(t, []string{existing, blocked}, deviceNames(c))

	// the earlier snapshot is not affected
	assert.Len(t, slices.Collect(devices), 3)

	assert.Zero(t, c.GarbageCollect())
}

func TestScanAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.open(t, "")

	require.NoError(t, c.ScanAll(false))

	assert.Equal(t, []string{f.path("sda")}, deviceNames(c))

	d, err := c.FindByPath(f.path("sda"))
	require.NoError(t, err)

	assert.Equal(t, []blkid.Tag{
		{Name: "LABEL", Value: "extlabel"},
		{Name: "UUID", Value: extUUID},
		{Name: "BLOCK_SIZE", Value: "1024"},
		{Name: "TYPE", Value: "ext4"},
	}, tags(d))
	assert.Equal(t, sysfs.MakeDev(8, 0), d.DevNo())
	assert.Zero(t, d.Priority())
	assert.WithinDuration(t, time.Now(), d.Verified(), time.Minute)

	require.NoError(t, c.ScanAll(true))

	assert.Equal(t, []string{f.path("sda"), f.path("sdb")}, deviceNames(c))

	d, err = c.FindByTag("UUID", swapUUID)
	require.NoError(t, err)

	assert.Equal(t, f.path("sdb"), d.Name())

	label, ok := d.Tag("LABEL")
	assert.True(t, ok)
	assert.Equal(t, "swaplabel", label)

	typ, ok := d.Tag("TYPE")
	assert.True(t, ok)
	assert.Equal(t, "swap", typ)

	// excluding everything leaves the cache as is
	c = f.open(t, "", cache.WithExcludes("*"))

	require.NoError(t, c.ScanAll(true))
	assert.Zero(t, c.Len())
	assert.False(t, c.Dirty())
}

func TestDevice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.open(t, "")

	sda := f.path("sda")

	_, err := c.Device(sda, cache.LookupFind)
	require.ErrorIs(t, err, blkid.ErrNotFound)

	d, err := c.Device(sda, cache.LookupCreate)
	require.NoError(t, err)

	assert.Equal(t, sda, d.Name())
	assert.Zero(t, d.NumTags())
	assert.True(t, d.Verified().IsZero())
	assert.True(t, c.Dirty())

	verified, err := c.Device(sda, cache.LookupVerify)
	require.NoError(t, err)

	assert.NotSame(t, d, verified)
	assert.Equal(t, 4, verified.NumTags())

	// recently verified entries are not probed again
	again, err := c.Device(sda, cache.LookupNormal)
	require.NoError(t, err)
	assert.Same(t, verified, again)

	// unknown devices which don't exist are not added
	_, err = c.Device(f.path("sdz"), cache.LookupNormal)
	require.ErrorIs(t, err, blkid.ErrNotFound)
	assert.Equal(t, 1, c.Len())

	// devices which fail to probe are not added either
	_, err = c.Device(f.devDir, cache.LookupNormal)
	require.ErrorIs(t, err, blkid.ErrArgument)
	assert.Equal(t, 1, c.Len())

	// verification reports devices which are gone, but keeps them cached
	c = f.open(t, "", cache.WithVerifyInterval(0))

	_, err = c.Device(sda, cache.LookupNormal)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	require.NoError(t, os.Remove(sda))

	_, err = c.Device(sda, cache.LookupVerify)
	require.ErrorIs(t, err, blkid.ErrNotFound)
	assert.Equal(t, 1, c.Len())

	_, err = c.Device(sda, cache.LookupNormal)
	require.ErrorIs(t, err, blkid.ErrNotFound)
	assert.Equal(t, 1, c.Len())

	d, err = c.FindByPath(sda)
	require.NoError(t, err)
	assert.Equal(t, sda, d.Name())

	assert.Equal(t, 1, c.GarbageCollect())
	assert.Zero(t, c.Len())
}
