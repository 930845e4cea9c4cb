// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements blkid subcommands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

// ErrNoMatch is returned when nothing was detected.
var ErrNoMatch = errors.New("nothing detected")

var rootCmdFlags struct {
	sysfsRoot   string
	debug       bool
	skipLocking bool
}

var logger = zap.NewNop()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "blkid",
	Short:         "Locate and print block device attributes",
	Long:          ``,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if !rootCmdFlags.debug {
			return nil
		}

		var err error

		logger, err = zap.NewDevelopment()

		return err
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, ErrNoMatch) {
		fmt.Fprintln(os.Stderr, err.Error())
	}

	return err
}

func probeOptions() []blkid.ProbeOption {
	return []blkid.ProbeOption{
		blkid.WithProbeLogger(logger),
		blkid.WithSysFSRoot(rootCmdFlags.sysfsRoot),
		blkid.WithSkipLocking(rootCmdFlags.skipLocking),
	}
}

func placeholder(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootCmdFlags.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&rootCmdFlags.skipLocking, "skip-locking", false, "don't lock block devices while probing")
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.sysfsRoot, "sysfs", sysfs.DefaultRoot, "sysfs mount point")
}
