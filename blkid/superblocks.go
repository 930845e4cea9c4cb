// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

func (p *Probe) superblockValues(m *match) *Values {
	var (
		values = newValues()
		flags  = p.sbFlags
		res    = m.res
	)

	if flags&SuperblockLabel != 0 && res.Label != nil {
		values.set("LABEL", *res.Label)
	}

	if flags&SuperblockLabelRaw != 0 && len(res.LabelRaw) > 0 {
		values.set("LABEL_RAW", string(res.LabelRaw))
	}

	if flags&SuperblockUUID != 0 && res.UUID != "" {
		values.set("UUID", res.UUID)
	}

	if flags&SuperblockUUIDRaw != 0 && len(res.UUIDRaw) > 0 {
		values.set("UUID_RAW", string(res.UUIDRaw))
	}

	if flags&SuperblockVersion != 0 && res.Version != "" {
		values.set("VERSION", res.Version)
	}

	if flags&SuperblockFSInfo != 0 {
		if res.ProbedSize != 0 {
			values.set("FSSIZE", strconv.FormatUint(res.ProbedSize, 10))
		}

		if res.FilesystemBlockSize != 0 {
			values.set("FSBLOCKSIZE", strconv.FormatUint(uint64(res.FilesystemBlockSize), 10))
		}
	}

	if res.BlockSize != 0 {
		values.set("BLOCK_SIZE", strconv.FormatUint(uint64(res.BlockSize), 10))
	}

	if flags&SuperblockType != 0 {
		values.set("TYPE", m.prober.Name())
	}

	if flags&SuperblockSecType != 0 && res.SecType != "" {
		values.set("SEC_TYPE", res.SecType)
	}

	if flags&SuperblockUsage != 0 {
		values.set("USAGE", Usage(m.prober.Usage()).String())
	}

	if flags&SuperblockMagic != 0 {
		sig := m.signature(ChainSuperblocks, 0)

		if sig.length > 0 {
			mag := m.magic

			if res.Magic != nil {
				mag = *res.Magic
			}

			values.set("SBMAGIC", string(mag.Value))
			values.set("SBMAGIC_OFFSET", strconv.FormatUint(sig.offset, 10))
		}
	}

	if res.BadChecksum {
		values.set("SBBADCSUM", "1")
	}

	return values
}

// probeSuperblocksSafe runs all superblock detectors and checks the matches for collisions.
func (p *Probe) probeSuperblocksSafe(cs *chainState) (*Values, error) {
	table, err := p.findPartitionTable(false)
	if err != nil {
		return nil, err
	}

	var (
		first, firstIntolerant *match
		intolerant             []string
	)

	for i, prober := range cs.probers {
		cs.idx = i

		if cs.filter[i] {
			continue
		}

		m, err := p.runProber(prober)
		if err != nil {
			return nil, err
		}

		if m == nil {
			continue
		}

		if m.res.BadChecksum && p.sbFlags&SuperblockBadChecksum == 0 {
			continue
		}

		if sig := m.signature(ChainSuperblocks, i); table != nil && coveredByPartition(table.res, sig) {
			p.logger.Debug("ignoring signature inside a partition",
				zap.String("type", prober.Name()),
				zap.Uint64("offset", sig.offset),
			)

			continue
		}

		if first == nil {
			first = m
		}

		if !probe.IsTolerant(prober) {
			intolerant = append(intolerant, prober.Name())

			if firstIntolerant == nil {
				firstIntolerant = m
			}
		}
	}

	if len(intolerant) > 1 {
		return nil, fmt.Errorf("%w: multiple superblocks detected: %v", ErrAmbiguous, intolerant)
	}

	found := first

	if firstIntolerant != nil {
		found = firstIntolerant
	}

	if found == nil {
		return nil, nil //nolint:nilnil
	}

	if found.prober.Usage() == probe.UsageRAID && table != nil {
		return nil, fmt.Errorf("%w: %s superblock and %s partition table detected", ErrAmbiguous, found.prober.Name(), table.prober.Name())
	}

	return p.superblockValues(found), nil
}

func coveredByPartition(table *probe.Result, sig *signature) bool {
	if sig.length == 0 {
		return false
	}

	for _, part := range table.Parts {
		if part.Extended {
			continue
		}

		if sig.offset >= part.Offset && sig.offset+sig.length <= part.Offset+part.Size {
			return true
		}
	}

	return false
}
