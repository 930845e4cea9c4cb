// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// The cache file is a JSON document:
//
//	{"devices": [
//	  {"name": "/dev/sda1", "devno": "8:1", "priority": 0, "verified": "2024-01-02T03:04:05Z",
//	   "tags": [{"name": "TYPE", "value": "ext4"}, ...]},
//	  ...
//	]}
//
// Tags are stored as a list to keep the discovery order.

const emptyDocument = `{"devices":[]}`

var errMalformed = errors.New("malformed cache file")

func decodeDevices(doc []byte) ([]*Device, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	if !gjson.ValidBytes(doc) {
		return nil, errMalformed
	}

	devices := gjson.GetBytes(doc, "devices")
	if !devices.Exists() {
		return nil, nil
	}

	if !devices.IsArray() {
		return nil, fmt.Errorf("%w: devices is not a list", errMalformed)
	}

	var (
		result []*Device
		err    error
	)

	devices.ForEach(func(_, entry gjson.Result) bool {
		var d *Device

		d, err = decodeDevice(entry)
		if err != nil {
			return false
		}

		result = append(result, d)

		return true
	})

	return result, err
}

func decodeDevice(entry gjson.Result) (*Device, error) {
	name := entry.Get("name").String()
	if name == "" {
		return nil, fmt.Errorf("%w: device without a name", errMalformed)
	}

	d := newDevice(name)

	if priority := entry.Get("priority"); priority.Exists() {
		d.priority = int(priority.Int())
	}

	if devNo := entry.Get("devno").String(); devNo != "" {
		n, err := sysfs.ParseDev(devNo)
		if err != nil {
			return nil, fmt.Errorf("%w: device %s: %w", errMalformed, name, err)
		}

		d.devNo = n
	}

	if verified := entry.Get("verified").String(); verified != "" {
		t, err := time.Parse(time.RFC3339Nano, verified)
		if err != nil {
			return nil, fmt.Errorf("%w: device %s: %w", errMalformed, name, err)
		}

		d.verified = t
	}

	entry.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		if tagName := tag.Get("name").String(); tagName != "" {
			d.tags.Set(tagName, tag.Get("value").String())
		}

		return true
	})

	return d, nil
}

func encodeDevices(devices []*Device) ([]byte, error) {
	doc := []byte(emptyDocument)

	for _, d := range devices {
		entry, err := encodeDevice(d)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.name, err)
		}

		doc, err = sjson.SetRawBytes(doc, "devices.-1", entry)
		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func encodeDevice(d *Device) ([]byte, error) {
	entry, err := sjson.SetBytes(nil, "name", d.name)
	if err != nil {
		return nil, err
	}

	if d.devNo != 0 {
		if entry, err = sjson.SetBytes(entry, "devno", fmt.Sprintf("%d:%d", sysfs.Major(d.devNo), sysfs.Minor(d.devNo))); err != nil {
			return nil, err
		}
	}

	if entry, err = sjson.SetBytes(entry, "priority", d.priority); err != nil {
		return nil, err
	}

	if !d.verified.IsZero() {
		if entry, err = sjson.SetBytes(entry, "verified", d.verified.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}

	if entry, err = sjson.SetRawBytes(entry, "tags", []byte("[]")); err != nil {
		return nil, err
	}

	for name, value := range d.Tags() {
		if entry, err = sjson.SetBytes(entry, "tags.-1", map[string]string{"name": name, "value": value}); err != nil {
			return nil, err
		}
	}

	return entry, nil
}
