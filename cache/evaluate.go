// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
)

// udev symlink directories under <devdir>/disk.
var symlinkDirs = map[string]string{
	"LABEL":     "by-label",
	"UUID":      "by-uuid",
	"PARTUUID":  "by-partuuid",
	"PARTLABEL": "by-partlabel",
}

// EvaluateTag returns the path of the device carrying the tag.
//
// udev symlinks are checked first, then the cache. Cache misses trigger a scan of
// non-removable devices. Nil cache means a temporary cache opened from the default location,
// it is never saved.
func EvaluateTag(name, value string, c *Cache) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty tag name", blkid.ErrArgument)
	}

	if c == nil {
		var err error

		if c, err = Open(""); err != nil {
			return "", err
		}
	}

	if dir, ok := symlinkDirs[name]; ok {
		link := filepath.Join(c.options.DevDir, "disk", dir, blkid.EncodeString(value))

		if path, err := filepath.EvalSymlinks(link); err == nil {
			return path, nil
		}
	}

	d, err := c.FindByTag(name, value)
	if errors.Is(err, blkid.ErrNotFound) {
		c.logger.Debug("tag is not cached, scanning devices", zap.String("tag", name))

		if err = c.ScanAll(false); err != nil {
			return "", err
		}

		d, err = c.FindByTag(name, value)
	}

	if err != nil {
		return "", err
	}

	if d, err = c.Device(d.Name(), LookupVerify); err != nil {
		return "", err
	}

	if actual, ok := d.Tag(name); !ok || actual != value {
		return "", fmt.Errorf("%w: device %s no longer has %s=%q", blkid.ErrNotFound, d.Name(), name, value)
	}

	return d.Name(), nil
}

// EvaluateSpec resolves "NAME=value" with EvaluateTag, anything else is a device path
// which is returned with symlinks resolved.
func EvaluateSpec(spec string, c *Cache) (string, error) {
	if !strings.HasPrefix(spec, "/") && strings.Contains(spec, "=") {
		name, value, err := blkid.ParseTag(spec)
		if err != nil {
			return "", err
		}

		return EvaluateTag(name, value, c)
	}

	if spec == "" {
		return "", fmt.Errorf("%w: empty device spec", blkid.ErrArgument)
	}

	path, err := filepath.EvalSymlinks(spec)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", blkid.ErrNotFound, spec)
		}

		return "", fmt.Errorf("%w: %s: %w", blkid.ErrIO, spec, err)
	}

	return path, nil
}
