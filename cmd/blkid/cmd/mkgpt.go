// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/siderolabs/go-blkid/block"
	"github.com/siderolabs/go-blkid/internal/sysfs"
	"github.com/siderolabs/go-blkid/partitioning"
	"github.com/siderolabs/go-blkid/partitioning/gpt"
)

var mkgptCmdFlags struct {
	partitions   []string
	diskGUID     string
	sectorSize   uint
	noPMBR       bool
	bootablePMBR bool
}

var mkgptCmd = &cobra.Command{
	Use:   "mkgpt PATH",
	Short: "Create a new GPT partition table",
	Long: `Create a new GPT partition table on a block device or a disk image.

Partitions are specified as NAME:SIZE[:TYPE], SIZE "rest" takes all the remaining space.
TYPE is a GUID or one of efi, bios, linux, swap, lvm, raid, msdata (default linux).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := parsePartitionSpecs(mkgptCmdFlags.partitions)
		if err != nil {
			return err
		}

		opts := []gpt.Option{gpt.WithLogger(logger)}

		if mkgptCmdFlags.diskGUID != "" {
			diskGUID, err := uuid.Parse(mkgptCmdFlags.diskGUID)
			if err != nil {
				return fmt.Errorf("invalid disk GUID: %w", err)
			}

			opts = append(opts, gpt.WithDiskGUID(diskGUID))
		}

		if mkgptCmdFlags.noPMBR {
			opts = append(opts, gpt.WithSkipPMBR())
		}

		if mkgptCmdFlags.bootablePMBR {
			opts = append(opts, gpt.WithMarkPMBRBootable())
		}

		return mkgpt(cmd, args[0], specs, opts...)
	},
}

type partitionSpec struct {
	name string
	size uint64
	typ  uuid.UUID
}

// parsePartitionSpecs parses NAME:SIZE[:TYPE] specs, zero size means the rest of the disk.
func parsePartitionSpecs(specs []string) ([]partitionSpec, error) {
	result := make([]partitionSpec, 0, len(specs))

	for i, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid partition %q, expected NAME:SIZE[:TYPE]", spec)
		}

		parsed := partitionSpec{
			name: parts[0],
			typ:  gpt.TypeLinuxData,
		}

		if parts[1] == "rest" {
			if i != len(specs)-1 {
				return nil, fmt.Errorf("partition %q: only the last partition can take the rest of the disk", parsed.name)
			}
		} else {
			size, err := humanize.ParseBytes(parts[1])
			if err != nil {
				return nil, fmt.Errorf("partition %q: %w", parsed.name, err)
			}

			if size == 0 {
				return nil, fmt.Errorf("partition %q: size can't be zero", parsed.name)
			}

			parsed.size = size
		}

		if len(parts) == 3 {
			typ, err := gpt.ParseType(parts[2])
			if err != nil {
				return nil, fmt.Errorf("partition %q: %w", parsed.name, err)
			}

			parsed.typ = typ
		}

		result = append(result, parsed)
	}

	return result, nil
}

//nolint:gocyclo
func mkgpt(cmd *cobra.Command, path string, specs []partitionSpec, opts ...gpt.Option) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return err
	}

	var (
		dev      gpt.Device
		isDevice = st.Mode()&os.ModeDevice != 0
	)

	if isDevice {
		blkdev := block.NewFromFile(f, block.WithSysFS(sysfs.FS{Root: rootCmdFlags.sysfsRoot}))

		if err = blkdev.Lock(true); err != nil {
			return fmt.Errorf("failed to lock %s: %w", path, err)
		}

		defer blkdev.Unlock() //nolint:errcheck

		dev, err = gpt.DeviceFromBlockDevice(blkdev)
	} else {
		dev, err = gpt.DeviceFromImage(f, mkgptCmdFlags.sectorSize)
	}

	if err != nil {
		return err
	}

	table, err := gpt.New(dev, opts...)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		size := spec.size
		if size == 0 {
			size = table.LargestContiguousAllocatable()
		}

		if _, _, err = table.AllocatePartition(size, spec.name, spec.typ); err != nil {
			return fmt.Errorf("partition %q: %w", spec.name, err)
		}
	}

	if err = table.Write(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: gpt partition table %s\n", path, table.DiskGUID())

	lines := []string{"NUMBER | DEVICE | START | SIZE | TYPE | UUID | NAME"}

	for i, part := range table.Partitions() {
		devName := "-"
		if isDevice {
			devName = partitioning.DevName(path, uint(i+1))
		}

		lines = append(lines, fmt.Sprintf("%d | %s | %d | %s | %s | %s | %s",
			i+1,
			devName,
			part.FirstLBA,
			humanize.IBytes(part.Sectors()*uint64(table.SectorSize())),
			part.TypeGUID,
			part.PartGUID,
			placeholder(part.Name),
		))
	}

	fmt.Fprintln(cmd.OutOrStdout(), columnize.SimpleFormat(lines))

	return nil
}

func init() {
	mkgptCmd.Flags().StringArrayVarP(&mkgptCmdFlags.partitions, "partition", "p", nil, "partition to create as NAME:SIZE[:TYPE], can be repeated")
	mkgptCmd.Flags().StringVar(&mkgptCmdFlags.diskGUID, "disk-guid", "", "disk GUID (default random)")
	mkgptCmd.Flags().UintVar(&mkgptCmdFlags.sectorSize, "sector-size", 512, "sector size for disk images")
	mkgptCmd.Flags().BoolVar(&mkgptCmdFlags.noPMBR, "no-pmbr", false, "don't write the protective MBR")
	mkgptCmd.Flags().BoolVar(&mkgptCmdFlags.bootablePMBR, "bootable-pmbr", false, "mark the protective MBR partition bootable")
	rootCmd.AddCommand(mkgptCmd)
}
