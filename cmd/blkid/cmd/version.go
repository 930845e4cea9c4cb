// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/blkid"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the compatible libblkid version and supported capabilities",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, version, date := blkid.LibraryVersion()

		fmt.Fprintf(cmd.OutOrStdout(), "blkid from go-blkid (libblkid %s [%d], %s)\n", version, n, date)
		fmt.Fprintf(cmd.OutOrStdout(), "capabilities: %s\n", blkid.SupportedCapabilities())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
