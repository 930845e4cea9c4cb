// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/blkid"
)

var probeCmdFlags struct {
	output string
	chains []string
	types  []string
	offset uint64
	size   uint64
	safe   bool
}

var probeCmd = &cobra.Command{
	Use:   "probe PATH...",
	Short: "Probe devices for superblocks, partition tables and topology",
	Long:  ``,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chains, err := parseChains(probeCmdFlags.chains)
		if err != nil {
			return err
		}

		mode, types, err := parseTypes(probeCmdFlags.types)
		if err != nil {
			return err
		}

		var found int

		for _, path := range args {
			matched, err := probePath(cmd.OutOrStdout(), path, chains, mode, types)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			if matched {
				found++
			}
		}

		if found == 0 {
			return ErrNoMatch
		}

		return nil
	},
}

func probePath(w io.Writer, path string, chains []blkid.Chain, mode blkid.FilterMode, types []string) (bool, error) {
	p := blkid.New(probeOptions()...)

	defer p.Close() //nolint:errcheck

	if err := p.Bind(path, os.O_RDONLY, probeCmdFlags.offset, probeCmdFlags.size); err != nil {
		return false, err
	}

	for _, c := range []blkid.Chain{blkid.ChainSuperblocks, blkid.ChainPartitions, blkid.ChainTopology} {
		if err := p.EnableChain(c, false); err != nil {
			return false, err
		}
	}

	for _, c := range chains {
		if err := p.EnableChain(c, true); err != nil {
			return false, err
		}
	}

	if len(types) > 0 {
		if err := p.SetFilterType(blkid.ChainSuperblocks, mode, types...); err != nil {
			return false, err
		}
	}

	p.SetSuperblocksFlags(blkid.SuperblockDefault | blkid.SuperblockUsage | blkid.SuperblockVersion)
	p.SetPartitionsFlags(blkid.PartitionEntryDetails)

	run := p.ProbeFull
	if probeCmdFlags.safe {
		run = p.ProbeSafe
	}

	outcome, err := run()
	if err != nil {
		return false, err
	}

	if outcome != blkid.OutcomeMatch {
		return false, nil
	}

	return true, printValues(w, path, p.Values().Items(), probeCmdFlags.output)
}

// parseChains converts chain names to chains.
func parseChains(names []string) ([]blkid.Chain, error) {
	chains := make([]blkid.Chain, 0, len(names))

	for _, name := range names {
		var found bool

		for _, c := range []blkid.Chain{blkid.ChainSuperblocks, blkid.ChainPartitions, blkid.ChainTopology} {
			if c.String() == name {
				chains = append(chains, c)
				found = true

				break
			}
		}

		if !found {
			return nil, fmt.Errorf("unknown chain %q", name)
		}
	}

	return chains, nil
}

// parseTypes parses a superblock type filter: either a list of types, or a list of "no"-prefixed types to skip.
func parseTypes(list []string) (blkid.FilterMode, []string, error) {
	if len(list) == 0 {
		return blkid.FilterOnlyIn, nil, nil
	}

	mode := blkid.FilterOnlyIn
	if strings.HasPrefix(list[0], "no") {
		mode = blkid.FilterNotIn
	}

	types := make([]string, 0, len(list))

	for _, name := range list {
		if mode == blkid.FilterNotIn {
			var ok bool

			if name, ok = strings.CutPrefix(name, "no"); !ok {
				return 0, nil, fmt.Errorf("type %q is mixed with negated types", name)
			}
		}

		if !blkid.KnownFilesystemType(name) {
			return 0, nil, fmt.Errorf("unknown filesystem type %q", name)
		}

		types = append(types, name)
	}

	return mode, types, nil
}

// printValues formats the tags the way blkid does.
func printValues(w io.Writer, path string, tags []blkid.Tag, output string) error {
	switch output {
	case "full":
		var sb strings.Builder

		sb.WriteString(path)
		sb.WriteString(":")

		for _, tag := range tags {
			fmt.Fprintf(&sb, " %s=%q", tag.Name, tag.Value)
		}

		_, err := fmt.Fprintln(w, sb.String())

		return err
	case "export":
		if _, err := fmt.Fprintf(w, "DEVNAME=%s\n", path); err != nil {
			return err
		}

		for _, tag := range tags {
			if _, err := fmt.Fprintf(w, "%s=%s\n", tag.Name, blkid.SafeString(tag.Value)); err != nil {
				return err
			}
		}

		_, err := fmt.Fprintln(w)

		return err
	case "value":
		for _, tag := range tags {
			if _, err := fmt.Fprintln(w, tag.Value); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func init() {
	probeCmd.Flags().BoolVar(&probeCmdFlags.safe, "safe", false, "fail on ambiguous results")
	probeCmd.Flags().StringSliceVar(&probeCmdFlags.chains, "chains", []string{"superblocks", "partitions"}, "chains to run (superblocks, partitions, topology)")
	probeCmd.Flags().StringSliceVarP(&probeCmdFlags.types, "types", "t", nil, "superblock types to probe for, prefix each with \"no\" to skip them instead")
	probeCmd.Flags().StringVarP(&probeCmdFlags.output, "output", "o", "full", "output format (full, export, value)")
	probeCmd.Flags().Uint64Var(&probeCmdFlags.offset, "offset", 0, "probing area offset in bytes")
	probeCmd.Flags().Uint64Var(&probeCmdFlags.size, "size", 0, "probing area size in bytes, defaults to the end of the device")
	rootCmd.AddCommand(probeCmd)
}
