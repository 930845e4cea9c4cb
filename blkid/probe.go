// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/magic"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/block"
	"github.com/siderolabs/go-blkid/internal/ioutil"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// Probe is a probing session bound to a single device or image file.
//
// Probe is not safe for concurrent use.
type Probe struct {
	options ProbeOptions
	logger  *zap.Logger
	sysfs   sysfs.FS

	f     *os.File
	owned bool
	dev   *block.Device
	disk  *block.Device // whole disk, used for locking
	path  string

	device             deviceInfo
	writable           bool
	offset             uint64
	size               uint64
	sectorSize         uint
	sectorSizeOverride uint

	sbFlags SuperblockFlags
	ptFlags PartitionFlags

	chains  [numChains]*chainState
	cur     Chain
	matched bool

	buf *buffers

	state  State
	values *Values
	last   *signature

	partlist *Partlist
	topology *Topology
}

// deviceInfo is a set of facts about the bound file.
type deviceInfo struct {
	size       uint64
	sectorSize uint
	devNo      uint64
	wholeDevNo uint64
	isBlock    bool
	wholeDisk  bool

	// skip is the reason why the device is not probed at all.
	skip string
}

type chainState struct {
	probers chain.Chain
	filter  []bool

	// idx is the last detector tried, -1 if the chain was not started.
	idx     int
	enabled bool
}

// signature is the location of the matched magic within the probing area.
type signature struct {
	chain  Chain
	idx    int
	offset uint64
	length uint64
}

// New creates an unbound probe.
//
// Only the superblocks chain is enabled by default.
func New(opts ...ProbeOption) *Probe {
	options := applyProbeOptions(opts...)

	p := &Probe{
		options: options,
		logger:  options.Logger,
		sysfs:   sysfs.FS{Root: options.SysFSRoot},
		sbFlags: SuperblockDefault,
	}

	p.chains[ChainSuperblocks] = newChainState(chain.Superblocks(), true)
	p.chains[ChainPartitions] = newChainState(chain.Partitions(chain.Options{}), false)
	p.chains[ChainTopology] = newChainState(nil, false)

	return p
}

func newChainState(probers chain.Chain, enabled bool) *chainState {
	return &chainState{
		probers: probers,
		filter:  make([]bool, len(probers)),
		idx:     -1,
		enabled: enabled,
	}
}

// NewFromPath creates a probe bound read-only to the whole file at path.
func NewFromPath(path string, opts ...ProbeOption) (*Probe, error) {
	p := New(opts...)

	if err := p.Bind(path, os.O_RDONLY, 0, 0); err != nil {
		return nil, err
	}

	return p, nil
}

// Bind opens the file at path and binds the probe to the area [offset, offset+size).
//
// Zero size means up to the end of the device.
// Any previous binding is released, and all results are discarded.
func (p *Probe) Bind(path string, flag int, offset, size uint64) error {
	f, err := os.OpenFile(path, flag|openFlags, 0)
	if err != nil {
		return ioError("open", err)
	}

	if err = p.bind(f, true, flag&(os.O_WRONLY|os.O_RDWR) != 0, offset, size); err != nil {
		f.Close() //nolint:errcheck

		return err
	}

	p.path = path

	return nil
}

// BindFile binds the probe to the area of an open file.
//
// The caller keeps the ownership of the file.
func (p *Probe) BindFile(f *os.File, offset, size uint64) error {
	return p.bind(f, false, isWritable(f), offset, size)
}

func (p *Probe) bind(f *os.File, owned, writable bool, offset, size uint64) error {
	if err := p.Close(); err != nil {
		return err
	}

	st, err := f.Stat()
	if err != nil {
		return ioError("stat", err)
	}

	var (
		info deviceInfo
		dev  = block.NewFromFile(f, block.WithSysFS(p.sysfs))
	)

	switch {
	case st.Mode()&fs.ModeDevice != 0 && st.Mode()&fs.ModeCharDevice == 0:
		info, err = inspectBlockDevice(dev)
		if err != nil {
			return err
		}
	case st.Mode().IsRegular():
		info = deviceInfo{
			size:       uint64(st.Size()),
			sectorSize: block.DefaultBlockSize,
		}
	default:
		return fmt.Errorf("%w: unsupported file type %s", ErrArgument, st.Mode().Type())
	}

	if offset > info.size {
		return fmt.Errorf("%w: offset %d is beyond the end of the device (%d)", ErrArgument, offset, info.size)
	}

	if size == 0 {
		size = info.size - offset
	}

	if offset+size < offset || offset+size > info.size {
		return fmt.Errorf("%w: probing area %d+%d is beyond the end of the device (%d)", ErrArgument, offset, size, info.size)
	}

	adviseRandom(f)

	p.f = f
	p.owned = owned
	p.dev = dev
	p.device = info
	p.writable = writable
	p.offset = offset
	p.size = size
	p.sectorSize = info.sectorSize
	p.sectorSizeOverride = 0

	p.buf = &buffers{
		r:          f,
		offset:     offset,
		size:       size,
		sectorSize: p.sectorSize,
	}

	p.resetPosition()
	p.invalidate()

	if info.skip != "" {
		p.logger.Debug("device is not probed", zap.String("reason", info.skip))
	}

	return nil
}

// Close releases the binding.
//
// The file is closed only if it was opened by the probe.
func (p *Probe) Close() error {
	if p.state == StateUnbound {
		return nil
	}

	var err error

	if p.disk != nil {
		err = multierr.Append(err, p.disk.Close())
	}

	if p.owned {
		err = multierr.Append(err, p.f.Close())
	}

	p.f, p.dev, p.disk, p.buf = nil, nil, nil, nil
	p.owned = false
	p.path = ""
	p.device = deviceInfo{}
	p.values, p.last, p.partlist, p.topology = nil, nil, nil, nil
	p.state = StateUnbound

	if err != nil {
		return ioError("close", err)
	}

	return nil
}

func (p *Probe) checkBound() error {
	if p.state == StateUnbound {
		return fmt.Errorf("%w: probe is not bound to a device", ErrState)
	}

	return nil
}

// invalidate drops results and derived objects.
func (p *Probe) invalidate() {
	p.values = nil
	p.last = nil
	p.partlist = nil
	p.topology = nil
	p.state = StateBound
}

func (p *Probe) resetPosition() {
	for _, cs := range p.chains {
		cs.idx = -1
	}

	p.cur = ChainSuperblocks
	p.matched = false
}

func (p *Probe) publish(values *Values) {
	p.values = values
	p.state = StateProbed
}

// State returns the state of the probe.
func (p *Probe) State() State { return p.state }

// File returns the bound file.
func (p *Probe) File() *os.File { return p.f }

// Path returns the path the probe was bound with, empty for BindFile.
func (p *Probe) Path() string { return p.path }

// Offset returns the start of the probing area in bytes.
func (p *Probe) Offset() uint64 { return p.offset }

// Size returns the size of the probing area in bytes.
func (p *Probe) Size() uint64 { return p.size }

// Sectors returns the size of the probing area in 512-byte sectors.
func (p *Probe) Sectors() uint64 { return p.size / sectorUnit }

// SectorSize returns the logical sector size (or the override).
func (p *Probe) SectorSize() uint { return p.sectorSize }

// DevNo returns the device number, zero for regular files.
func (p *Probe) DevNo() uint64 { return p.device.devNo }

// WholeDiskDevNo returns the device number of the whole disk, zero for regular files.
func (p *Probe) WholeDiskDevNo() uint64 { return p.device.wholeDevNo }

// IsWholeDisk returns true if the bound block device is a whole disk.
func (p *Probe) IsWholeDisk() bool { return p.device.wholeDisk }

// SetSectorSize overrides the logical sector size used by detectors.
func (p *Probe) SetSectorSize(size uint) error {
	if err := p.require(CapSectorSize); err != nil {
		return err
	}

	if err := p.checkBound(); err != nil {
		return err
	}

	if size < 512 || size > 65536 || size&(size-1) != 0 {
		return fmt.Errorf("%w: invalid sector size %d", ErrArgument, size)
	}

	p.sectorSize = size
	p.sectorSizeOverride = size
	p.buf.sectorSize = size
	p.buf.drop()
	p.invalidate()

	return nil
}

// EnableChain enables or disables a chain.
//
// The change takes effect on the next probing operation.
func (p *Probe) EnableChain(c Chain, enabled bool) error {
	if !c.valid() {
		return fmt.Errorf("%w: invalid chain %d", ErrArgument, c)
	}

	p.chains[c].enabled = enabled

	return nil
}

// SetSuperblocksFlags selects the values reported by the superblocks chain.
func (p *Probe) SetSuperblocksFlags(flags SuperblockFlags) {
	p.sbFlags = flags
}

// SetPartitionsFlags configures the partitions chain.
func (p *Probe) SetPartitionsFlags(flags PartitionFlags) {
	p.ptFlags = flags

	cs := p.chains[ChainPartitions]
	cs.probers = chain.Partitions(chain.Options{
		ForceGPT: flags&PartitionForceGPT != 0,
	})

	p.filterChanged(cs)
}

// Values returns the results of the last probing operation.
func (p *Probe) Values() *Values {
	if p.values == nil {
		return newValues()
	}

	return p.values
}

// LookupValue returns the named value of the last probing operation.
func (p *Probe) LookupValue(name string) (string, error) {
	value, ok := p.values.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: value %q", ErrNotFound, name)
	}

	return value, nil
}

// Reset drops results and rewinds all chains.
//
// The binding, filters and buffers are kept.
func (p *Probe) Reset() {
	if p.state == StateUnbound {
		return
	}

	p.resetPosition()
	p.invalidate()
}

// StepBack rewinds the current chain by one detector,
// so that the next ProbeStep re-runs the last detector.
//
// The buffer cache is dropped, hidden ranges are kept.
func (p *Probe) StepBack() error {
	if err := p.checkBound(); err != nil {
		return err
	}

	if p.cur >= numChains || p.chains[p.cur].idx < 0 {
		return fmt.Errorf("%w: no detector to step back to", ErrState)
	}

	p.chains[p.cur].idx--
	p.buf.drop()
	p.invalidate()

	return nil
}

// HideRange makes the range of the probing area read as zeroes.
//
// On-disk data is never modified.
func (p *Probe) HideRange(offset, length uint64) error {
	if err := p.require(CapHideRange); err != nil {
		return err
	}

	if err := p.checkBound(); err != nil {
		return err
	}

	if err := p.buf.hide(offset, length); err != nil {
		return err
	}

	p.invalidate()

	return nil
}

// ResetBuffers drops the buffer cache and all hidden ranges.
func (p *Probe) ResetBuffers() error {
	if err := p.require(CapResetBuffers); err != nil {
		return err
	}

	if err := p.checkBound(); err != nil {
		return err
	}

	p.buf.reset()
	p.invalidate()

	return nil
}

// ProbeStep runs detectors up to the next match.
//
// Each call reports the values of exactly one detector. Chains are run in the order
// superblocks, partitions, topology; detectors in a chain are run in table order.
// OutcomeNoMatch is returned if all detectors were run without a single match since
// the last bind or reset, OutcomeDone if all detectors were run after a match.
func (p *Probe) ProbeStep() (Outcome, error) {
	if err := p.checkBound(); err != nil {
		return OutcomeNoMatch, err
	}

	p.invalidate()

	unlock, err := p.lock()
	if err != nil {
		return OutcomeNoMatch, err
	}

	defer unlock()

	for p.cur < numChains {
		cs := p.chains[p.cur]

		if cs.enabled && p.device.skip == "" {
			values, sig, err := p.probeChain(p.cur, cs, cs.idx+1)
			if err != nil {
				return OutcomeNoMatch, err
			}

			if values != nil {
				p.publish(values)
				p.last = sig
				p.matched = true

				return OutcomeMatch, nil
			}
		}

		p.cur++

		if p.cur < numChains {
			p.chains[p.cur].idx = -1
		}
	}

	if p.matched {
		return OutcomeDone, nil
	}

	return OutcomeNoMatch, nil
}

// ProbeFull runs all enabled chains and reports the first match of each.
func (p *Probe) ProbeFull() (Outcome, error) {
	return p.probeAll(false)
}

// ProbeSafe is ProbeFull which checks all superblock detectors.
//
// Superblocks located inside a partition of the detected partition table are ignored.
// More than one remaining superblock (except for tolerant ones, e.g. swap), or a RAID
// superblock along with a partition table result in ErrAmbiguous.
func (p *Probe) ProbeSafe() (Outcome, error) {
	return p.probeAll(true)
}

func (p *Probe) probeAll(safe bool) (Outcome, error) {
	if err := p.checkBound(); err != nil {
		return OutcomeNoMatch, err
	}

	p.invalidate()
	defer p.resetPosition()

	if p.device.skip != "" {
		return OutcomeNoMatch, nil
	}

	unlock, err := p.lock()
	if err != nil {
		return OutcomeNoMatch, err
	}

	defer unlock()

	values := newValues()

	for c, cs := range p.chains {
		if !cs.enabled {
			continue
		}

		var chainValues *Values

		if safe && Chain(c) == ChainSuperblocks {
			chainValues, err = p.probeSuperblocksSafe(cs)
		} else {
			chainValues, _, err = p.probeChain(Chain(c), cs, 0)
		}

		if err != nil {
			return OutcomeNoMatch, err
		}

		if chainValues != nil {
			values.merge(chainValues)
		}
	}

	if values.Len() == 0 {
		return OutcomeNoMatch, nil
	}

	p.publish(values)

	return OutcomeMatch, nil
}

func (p *Probe) chainLen(c Chain) int {
	switch c {
	case ChainPartitions:
		// the last detector reports details of the bound partition
		return len(p.chains[c].probers) + 1
	case ChainTopology:
		return 1
	default:
		return len(p.chains[c].probers)
	}
}

// probeChain runs detectors of the chain starting at index start up to the first match.
func (p *Probe) probeChain(c Chain, cs *chainState, start int) (*Values, *signature, error) {
	for i := start; i < p.chainLen(c); i++ {
		cs.idx = i

		values, sig, err := p.runDetector(c, cs, i)
		if err != nil {
			return nil, nil, err
		}

		if values != nil {
			return values, sig, nil
		}
	}

	return nil, nil, nil
}

func (p *Probe) runDetector(c Chain, cs *chainState, i int) (*Values, *signature, error) {
	switch c {
	case ChainSuperblocks:
		if cs.filter[i] {
			return nil, nil, nil
		}

		m, err := p.runProber(cs.probers[i])
		if err != nil || m == nil {
			return nil, nil, err
		}

		if m.res.BadChecksum && p.sbFlags&SuperblockBadChecksum == 0 {
			p.logger.Debug("superblock checksum mismatch", zap.String("type", m.prober.Name()))

			return nil, nil, nil
		}

		return p.superblockValues(m), m.signature(c, i), nil
	case ChainPartitions:
		if i == len(cs.probers) {
			values, err := p.partitionEntryValues()

			return values, nil, err
		}

		if cs.filter[i] {
			return nil, nil, nil
		}

		m, err := p.runProber(cs.probers[i])
		if err != nil || m == nil {
			return nil, nil, err
		}

		return p.partitionValues(m), m.signature(c, i), nil
	case ChainTopology:
		topology, err := p.Topology()
		if err != nil {
			return nil, nil, err
		}

		values := topology.values()
		if values.Len() == 0 {
			return nil, nil, nil
		}

		return values, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: invalid chain %d", ErrArgument, c)
	}
}

// match is a successful detector run.
type match struct {
	prober probe.Prober
	res    *probe.Result
	magic  magic.Magic
}

func (m *match) signature(c Chain, idx int) *signature {
	mag := m.magic

	if m.res.Magic != nil {
		mag = *m.res.Magic
	}

	return &signature{
		chain:  c,
		idx:    idx,
		offset: uint64(mag.Offset),
		length: uint64(len(mag.Value)),
	}
}

// runProber matches the magic and runs the prober, nil match means no match.
func (p *Probe) runProber(prober probe.Prober) (*match, error) {
	var mag magic.Magic

	if magics := prober.Magic(); magics != nil {
		buf := make([]byte, min(uint64(magic.MaxBlockSize(magics)), p.size))

		if err := ioutil.ReadFullAt(p.buf, buf, 0); err != nil {
			return nil, ioError("read magic", err)
		}

		var ok bool

		if mag, ok = magic.Match(magics, buf); !ok {
			return nil, nil //nolint:nilnil
		}
	}

	res, err := prober.Probe(p.buf, mag)
	if err != nil {
		var pathErr *fs.PathError

		if errors.As(err, &pathErr) {
			return nil, ioError("probe "+prober.Name(), err)
		}

		// truncated or corrupted metadata is not a match
		p.logger.Debug("probe failed", zap.String("type", prober.Name()), zap.Error(err))

		return nil, nil //nolint:nilnil
	}

	if res == nil {
		return nil, nil //nolint:nilnil
	}

	p.logger.Debug("signature found", zap.String("type", prober.Name()), zap.Int("offset", mag.Offset))

	return &match{
		prober: prober,
		res:    res,
		magic:  mag,
	}, nil
}

// findPartitionTable returns the first partition table detected, nil if none.
func (p *Probe) findPartitionTable(filtered bool) (*match, error) {
	cs := p.chains[ChainPartitions]

	for i, prober := range cs.probers {
		if filtered && cs.filter[i] {
			continue
		}

		m, err := p.runProber(prober)
		if err != nil {
			return nil, err
		}

		if m != nil {
			return m, nil
		}
	}

	return nil, nil //nolint:nilnil
}

// Partitions returns the partition list of the bound device.
//
// The partition table is probed on first use, honoring the partitions chain filter,
// but regardless of whether the chain is enabled. An empty list is returned if there is no table.
func (p *Probe) Partitions() (*Partlist, error) {
	if err := p.checkBound(); err != nil {
		return nil, err
	}

	if p.partlist != nil {
		return p.partlist, nil
	}

	var devNo uint64

	if p.device.isBlock && p.device.wholeDisk {
		devNo = p.device.devNo
	}

	if p.device.skip != "" {
		p.partlist = newPartlist(nil, p.sysfs, devNo)

		return p.partlist, nil
	}

	unlock, err := p.lock()
	if err != nil {
		return nil, err
	}

	defer unlock()

	m, err := p.findPartitionTable(true)
	if err != nil {
		return nil, err
	}

	var res *probe.Result

	if m != nil {
		res = m.res
	}

	p.partlist = newPartlist(res, p.sysfs, devNo)

	return p.partlist, nil
}
