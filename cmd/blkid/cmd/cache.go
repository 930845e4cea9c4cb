// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/cache"
	"github.com/siderolabs/go-blkid/internal/sysfs"
)

var cacheCmdFlags struct {
	file      string
	removable bool
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the device cache",
	Long:  ``,
}

var cacheScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe all block devices and update the cache",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(func(c *cache.Cache) error {
			if err := c.ScanAll(cacheCmdFlags.removable); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d devices cached\n", c.Len())

			return nil
		})
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached devices",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(func(c *cache.Cache) error {
			lines := []string{"DEVICE | DEVNO | PRIORITY | VERIFIED | TAGS"}

			for d := range c.Devices() {
				devNo := "-"
				if d.DevNo() != 0 {
					devNo = fmt.Sprintf("%d:%d", sysfs.Major(d.DevNo()), sysfs.Minor(d.DevNo()))
				}

				verified := "never"
				if !d.Verified().IsZero() {
					verified = humanize.Time(d.Verified())
				}

				tags := make([]string, 0, d.NumTags())

				for name, value := range d.Tags() {
					tags = append(tags, fmt.Sprintf("%s=%q", name, value))
				}

				lines = append(lines, fmt.Sprintf("%s | %s | %d | %s | %s", d.Name(), devNo, d.Priority(), verified, strings.Join(tags, " ")))
			}

			fmt.Fprintln(cmd.OutOrStdout(), columnize.SimpleFormat(lines))

			return nil
		})
	},
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove cached devices which no longer exist",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(func(c *cache.Cache) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%d devices removed\n", c.GarbageCollect())

			return nil
		})
	},
}

var cacheFindCmd = &cobra.Command{
	Use:   "find NAME=VALUE|PATH",
	Short: "Find the device by tag or path",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(c *cache.Cache) error {
			path, err := cache.EvaluateSpec(args[0], c)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		})
	},
}

// withCache opens the cache, and saves it if it was modified.
func withCache(f func(*cache.Cache) error) error {
	c, err := cache.Open(cacheCmdFlags.file,
		cache.WithLogger(logger),
		cache.WithSysFSRoot(rootCmdFlags.sysfsRoot),
	)
	if err != nil {
		return err
	}

	if err = f(c); err != nil {
		return err
	}

	if !c.Dirty() {
		return nil
	}

	return c.Save()
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheCmdFlags.file, "cache-file", "", "cache file location (default $"+cache.PathEnv+" or "+cache.DefaultPath+")")
	cacheScanCmd.Flags().BoolVar(&cacheCmdFlags.removable, "removable", false, "probe removable media too")

	cacheCmd.AddCommand(cacheScanCmd, cacheListCmd, cacheGCCmd, cacheFindCmd)
	rootCmd.AddCommand(cacheCmd)
}
