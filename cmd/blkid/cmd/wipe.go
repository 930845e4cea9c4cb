// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/block"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

var wipeCmdFlags struct {
	dryRun bool
	full   bool
	fast   bool
}

var wipeCmd = &cobra.Command{
	Use:   "wipe PATH...",
	Short: "Erase superblock and partition table signatures",
	Long: `Erase superblock and partition table signatures.

With --fast the first and the last megabyte of the device are zeroed (after a discard),
with --full the whole device is zeroed using the fastest method supported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if wipeCmdFlags.full || wipeCmdFlags.fast {
				if err := wipeDevice(cmd.OutOrStdout(), path, wipeCmdFlags.fast); err != nil {
					return fmt.Errorf("failed wiping %q: %w", path, err)
				}

				continue
			}

			n, err := wipeSignatures(cmd.OutOrStdout(), path, wipeCmdFlags.dryRun)
			if err != nil {
				return fmt.Errorf("failed wiping %q: %w", path, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d signatures wiped\n", path, n)
		}

		return nil
	},
}

// wipeSignatures erases signatures one by one, reporting each of them.
func wipeSignatures(w io.Writer, path string, dryRun bool) (int, error) {
	p := blkid.New(probeOptions()...)

	defer p.Close() //nolint:errcheck

	if err := p.Bind(path, os.O_RDWR, 0, 0); err != nil {
		return 0, err
	}

	if err := p.EnableChain(blkid.ChainPartitions, true); err != nil {
		return 0, err
	}

	p.SetSuperblocksFlags(blkid.SuperblockType | blkid.SuperblockMagic)
	p.SetPartitionsFlags(blkid.PartitionMagic)

	var (
		seen  = map[string]struct{}{}
		count int
	)

	for {
		outcome, err := p.ProbeStep()
		if err != nil {
			return count, err
		}

		if outcome != blkid.OutcomeMatch {
			return count, nil
		}

		typ, offset := signatureOf(p.Values())
		if typ == "" {
			continue
		}

		key := typ + "@" + offset

		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		fmt.Fprintf(w, "%s: %s signature at offset %s\n", path, typ, offset)

		if err = p.WipeSignature(dryRun); err != nil {
			return count, err
		}

		count++
	}
}

// wipeDevice zeroes the contents instead of erasing individual signatures.
func wipeDevice(w io.Writer, path string, fast bool) error {
	dev, err := block.NewFromPath(path, block.OpenForWrite(), block.WithSysFS(sysfs.FS{Root: rootCmdFlags.sysfsRoot}))
	if err != nil {
		return err
	}

	defer dev.Close() //nolint:errcheck

	if err = dev.Lock(true); err != nil {
		return fmt.Errorf("failed to lock: %w", err)
	}

	defer dev.Unlock() //nolint:errcheck

	if fast {
		if err = dev.FastWipe(); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s: fast wiped\n", path)

		return nil
	}

	method, err := dev.Wipe()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: wiped using %s\n", path, method)

	return nil
}

func signatureOf(values *blkid.Values) (string, string) {
	for _, keys := range [][2]string{{"TYPE", "SBMAGIC_OFFSET"}, {"PTTYPE", "PTMAGIC_OFFSET"}} {
		if typ, ok := values.Lookup(keys[0]); ok {
			offset, _ := values.Lookup(keys[1])

			return typ, offset
		}
	}

	return "", ""
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.dryRun, "dry-run", false, "only report signatures which would be wiped")
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.full, "full", false, "zero out the whole device")
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.fast, "fast", false, "zero out the beginning and the end of the device")
	wipeCmd.MarkFlagsMutuallyExclusive("dry-run", "full", "fast")
	rootCmd.AddCommand(wipeCmd)
}
