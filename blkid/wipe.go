// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"fmt"

	"go.uber.org/zap"
)

// WipeSignature erases the magic of the last ProbeStep match and steps back.
//
// With dryRun the range is only hidden in memory, so that the next ProbeStep
// behaves as if the signature was erased. Both modes require a writable binding.
func (p *Probe) WipeSignature(dryRun bool) error {
	if err := p.checkBound(); err != nil {
		return err
	}

	sig := p.last
	if sig == nil {
		return fmt.Errorf("%w: no signature to wipe", ErrState)
	}

	if !p.writable {
		return fmt.Errorf("%w: probe is bound read-only", ErrState)
	}

	if sig.length == 0 {
		// nothing on disk to erase (e.g. topology)
		return nil
	}

	if sig.offset+sig.length > p.size {
		return fmt.Errorf("%w: signature %d+%d is outside of the probing area", ErrArgument, sig.offset, sig.length)
	}

	if dryRun {
		if err := p.buf.hide(sig.offset, sig.length); err != nil {
			return err
		}
	} else {
		unlock, err := p.lock()
		if err != nil {
			return err
		}

		err = p.zeroRange(p.offset+sig.offset, sig.length)

		unlock()

		if err != nil {
			return ioError("wipe", err)
		}
	}

	p.logger.Debug("signature wiped",
		zap.Stringer("chain", sig.chain),
		zap.Uint64("offset", p.offset+sig.offset),
		zap.Uint64("length", sig.length),
		zap.Bool("dry_run", dryRun),
	)

	return p.StepBack()
}

// WipeAll erases all signatures found by the enabled chains, it returns the number of signatures wiped.
func (p *Probe) WipeAll(dryRun bool) (int, error) {
	if err := p.require(CapWipeAll); err != nil {
		return 0, err
	}

	if err := p.checkBound(); err != nil {
		return 0, err
	}

	p.Reset()

	type key struct {
		chain  Chain
		idx    int
		offset uint64
	}

	var (
		wiped = map[key]struct{}{}
		count int
	)

	for {
		outcome, err := p.ProbeStep()
		if err != nil {
			return count, err
		}

		if outcome != OutcomeMatch {
			return count, nil
		}

		sig := p.last
		if sig == nil || sig.length == 0 {
			continue
		}

		// the same signature matching again after a wipe is skipped
		k := key{sig.chain, sig.idx, sig.offset}

		if _, ok := wiped[k]; ok {
			continue
		}

		wiped[k] = struct{}{}

		if err = p.WipeSignature(dryRun); err != nil {
			return count, err
		}

		count++
	}
}
