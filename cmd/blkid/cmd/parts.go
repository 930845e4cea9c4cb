// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/blkid"
)

var partsCmd = &cobra.Command{
	Use:   "parts PATH",
	Short: "List partitions of the device",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := blkid.NewFromPath(args[0], probeOptions()...)
		if err != nil {
			return err
		}

		defer p.Close() //nolint:errcheck

		ls, err := p.Partitions()
		if err != nil {
			return err
		}

		table := ls.Table()
		if table == nil {
			return ErrNoMatch
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s partition table %s\n", args[0], table.Type(), placeholder(table.ID()))

		lines := []string{"NUMBER | START | SIZE | KIND | TYPE | FLAGS | UUID | NAME"}

		for part := range ls.Partitions() {
			kind := "primary"

			switch {
			case part.IsExtended():
				kind = "extended"
			case part.IsLogical():
				kind = "logical"
			}

			lines = append(lines, fmt.Sprintf("%d | %d | %s | %s | %s | 0x%x | %s | %s",
				part.Partno(),
				part.Start(),
				humanize.IBytes(part.Size()*512),
				kind,
				part.TypeName(),
				part.Flags(),
				placeholder(part.UUID()),
				placeholder(part.Name()),
			))
		}

		fmt.Fprintln(cmd.OutOrStdout(), columnize.SimpleFormat(lines))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(partsCmd)
}
