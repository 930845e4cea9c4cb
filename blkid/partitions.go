// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/internal/sysfs"
)

func (p *Probe) partitionValues(m *match) *Values {
	values := newValues()

	if m.res.UUID != "" {
		values.set("PTUUID", m.res.UUID)
	}

	values.set("PTTYPE", m.prober.Name())

	if p.ptFlags&PartitionMagic != 0 {
		if sig := m.signature(ChainPartitions, 0); sig.length > 0 {
			mag := m.magic

			if m.res.Magic != nil {
				mag = *m.res.Magic
			}

			values.set("PTMAGIC", string(mag.Value))
			values.set("PTMAGIC_OFFSET", strconv.FormatUint(sig.offset, 10))
		}
	}

	return values
}

// partitionEntryValues reports the entry of the bound partition in the whole disk partition table.
//
// Nil values are returned if the bound device is not a partition.
func (p *Probe) partitionEntryValues() (*Values, error) {
	if p.ptFlags&PartitionEntryDetails == 0 || !p.device.isBlock || p.device.wholeDisk {
		return nil, nil //nolint:nilnil
	}

	name, err := p.sysfs.DeviceName(p.device.wholeDevNo)
	if err != nil {
		p.logger.Debug("failed to resolve whole disk", zap.Error(err))

		return nil, nil //nolint:nilnil
	}

	disk := New(
		WithProbeLogger(p.logger),
		WithSkipLocking(true),
		WithSysFSRoot(p.sysfs.Root),
	)

	if err = disk.Bind(filepath.Join("/dev", name), os.O_RDONLY, 0, 0); err != nil {
		return nil, err
	}

	defer disk.Close() //nolint:errcheck

	disk.SetPartitionsFlags(p.ptFlags &^ PartitionEntryDetails)

	ls, err := disk.Partitions()
	if err != nil {
		return nil, err
	}

	part, err := ls.DevnoToPartition(p.device.devNo)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil //nolint:nilnil
		}

		return nil, err
	}

	values := newValues()

	values.set("PART_ENTRY_SCHEME", part.Table().Type())

	if part.Name() != "" {
		values.set("PART_ENTRY_NAME", part.Name())
	}

	if part.UUID() != "" {
		values.set("PART_ENTRY_UUID", part.UUID())
	}

	values.set("PART_ENTRY_TYPE", part.TypeName())

	if part.Flags() != 0 {
		values.set("PART_ENTRY_FLAGS", fmt.Sprintf("0x%x", part.Flags()))
	}

	values.set("PART_ENTRY_NUMBER", strconv.Itoa(part.Partno()))
	values.set("PART_ENTRY_OFFSET", strconv.FormatUint(part.Start(), 10))
	values.set("PART_ENTRY_SIZE", strconv.FormatUint(part.Size(), 10))
	values.set("PART_ENTRY_DISK", fmt.Sprintf("%d:%d", sysfs.Major(p.device.wholeDevNo), sysfs.Minor(p.device.wholeDevNo)))

	return values, nil
}
