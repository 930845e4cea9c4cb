// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/blkid"
)

var topologyCmdFlags struct {
	sectorSize uint
}

var topologyCmd = &cobra.Command{
	Use:   "topology PATH",
	Short: "Show I/O topology of the device",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := blkid.NewFromPath(args[0], probeOptions()...)
		if err != nil {
			return err
		}

		defer p.Close() //nolint:errcheck

		if topologyCmdFlags.sectorSize != 0 {
			if err = p.SetSectorSize(topologyCmdFlags.sectorSize); err != nil {
				return err
			}
		}

		topology, err := p.Topology()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), columnize.SimpleFormat([]string{
			"SIZE | " + humanize.IBytes(p.Size()),
			"LOGICAL SECTOR SIZE | " + strconv.FormatUint(topology.LogicalSectorSize, 10),
			"PHYSICAL SECTOR SIZE | " + strconv.FormatUint(topology.PhysicalSectorSize, 10),
			"MINIMUM IO SIZE | " + strconv.FormatUint(topology.MinimumIOSize, 10),
			"OPTIMAL IO SIZE | " + strconv.FormatUint(topology.OptimalIOSize, 10),
			"ALIGNMENT OFFSET | " + strconv.FormatUint(topology.AlignmentOffset, 10),
			"DAX | " + strconv.FormatBool(topology.DAX),
		}))

		return nil
	},
}

func init() {
	topologyCmd.Flags().UintVar(&topologyCmdFlags.sectorSize, "sector-size", 0, "override the logical sector size")
	rootCmd.AddCommand(topologyCmd)
}
