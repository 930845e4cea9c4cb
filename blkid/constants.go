// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"strings"

	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// Chain is a category of detectors.
type Chain int

// Chains in the order they are run.
const (
	ChainSuperblocks Chain = iota
	ChainPartitions
	ChainTopology

	numChains
)

func (c Chain) String() string {
	switch c {
	case ChainSuperblocks:
		return "superblocks"
	case ChainPartitions:
		return "partitions"
	case ChainTopology:
		return "topology"
	default:
		return "unknown"
	}
}

func (c Chain) valid() bool {
	return c >= ChainSuperblocks && c < numChains
}

// Outcome of a probing operation.
//
// OutcomeNoMatch is a valid result, not an error.
type Outcome int

// Outcomes.
const (
	// OutcomeMatch means a detector matched, results are available.
	OutcomeMatch Outcome = iota
	// OutcomeNoMatch means no detector matched since the last bind or reset.
	OutcomeNoMatch
	// OutcomeDone means all detectors were run, and there was at least one match.
	OutcomeDone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeNoMatch:
		return "no match"
	case OutcomeDone:
		return "done"
	default:
		return "unknown"
	}
}

// State of the Probe.
type State int

// States.
const (
	StateUnbound State = iota
	StateBound
	StateProbed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateProbed:
		return "probed"
	default:
		return "unknown"
	}
}

// FilterMode defines how the filter criteria are applied.
type FilterMode int

// Filter modes.
const (
	// FilterNotIn skips detectors matching the criteria.
	FilterNotIn FilterMode = iota
	// FilterOnlyIn runs only detectors matching the criteria.
	FilterOnlyIn
)

// Usage is the category of a superblock.
type Usage uint

// Usage categories.
const (
	UsageFilesystem = Usage(probe.UsageFilesystem)
	UsageRAID       = Usage(probe.UsageRAID)
	UsageCrypto     = Usage(probe.UsageCrypto)
	UsageOther      = Usage(probe.UsageOther)
)

func (u Usage) String() string {
	var names []string

	for _, item := range []struct {
		usage Usage
		name  string
	}{
		{UsageFilesystem, "filesystem"},
		{UsageRAID, "raid"},
		{UsageCrypto, "crypto"},
		{UsageOther, "other"},
	} {
		if u&item.usage != 0 {
			names = append(names, item.name)
		}
	}

	return strings.Join(names, ",")
}

// SuperblockFlags select the values reported by the superblocks chain.
type SuperblockFlags uint

// Superblock flags.
const (
	SuperblockLabel SuperblockFlags = 1 << iota
	SuperblockLabelRaw
	SuperblockUUID
	SuperblockUUIDRaw
	SuperblockType
	SuperblockSecType
	SuperblockUsage
	SuperblockVersion
	SuperblockMagic
	// SuperblockBadChecksum accepts superblocks with a bad checksum (reported as SBBADCSUM).
	SuperblockBadChecksum
	// SuperblockFSInfo reports filesystem size and block size.
	SuperblockFSInfo

	SuperblockDefault = SuperblockLabel | SuperblockUUID | SuperblockType | SuperblockSecType
)

// PartitionFlags configure the partitions chain.
type PartitionFlags uint

// Partition flags.
const (
	// PartitionForceGPT probes GPT even if a valid legacy MBR is present.
	PartitionForceGPT PartitionFlags = 1 << iota
	// PartitionEntryDetails reports PART_ENTRY_* values when a partition is bound.
	PartitionEntryDetails
	// PartitionMagic reports PTMAGIC and PTMAGIC_OFFSET.
	PartitionMagic
)
