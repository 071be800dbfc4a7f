package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/embfs/fatfs"
	"github.com/spf13/cobra"
)

func defineInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Print volume geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer img.Close()
			info := fsys.Info()
			fmt.Printf("Type:               %s\n", info.Type)
			fmt.Printf("Sectors/cluster:    %d\n", info.SectorsPerCluster)
			fmt.Printf("Bytes/cluster:      %d\n", info.BytesPerCluster)
			fmt.Printf("Data clusters:      %d\n", info.TotalClusters)
			fmt.Printf("Capacity:           %s\n",
				humanize.IBytes(uint64(info.TotalClusters)*uint64(info.BytesPerCluster)))
			return fsys.Unmount()
		},
	}
}

func defineLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer img.Close()
			err = fsys.ForEachEntry(dir, func(e fat.EntryInfo) error {
				kind := "-"
				size := humanize.IBytes(uint64(e.Size))
				if e.IsDir {
					kind = "d"
					size = ""
				}
				fmt.Printf("%s %10s  %s\n", kind, size, e.Name)
				return nil
			})
			if err != nil {
				return err
			}
			return fsys.Unmount()
		},
	}
}

func defineCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Write a file's contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer img.Close()
			var fp fat.File
			if err := fsys.OpenFile(&fp, args[1], fat.FlagRead); err != nil {
				return err
			}
			_, err = io.Copy(os.Stdout, &fp)
			if cerr := fp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			return fsys.Unmount()
		},
	}
}

func defineCpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <image> <host-file> <image-path>",
		Short: "Copy a host file into the image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer src.Close()
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRW)
			if err != nil {
				return err
			}
			defer img.Close()
			var fp fat.File
			err = fsys.OpenFile(&fp, args[2], fat.FlagWrite|fat.FlagCreate|fat.FlagTrunc)
			if err != nil {
				return err
			}
			n, err := io.Copy(&fp, src)
			if cerr := fp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s to %s\n", humanize.IBytes(uint64(n)), args[2])
			return fsys.Unmount()
		},
	}
}

func defineRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <image> <path>",
		Short: "Remove a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRW)
			if err != nil {
				return err
			}
			defer img.Close()
			if err := fsys.Unlink(args[1]); err != nil {
				return err
			}
			return fsys.Unmount()
		},
	}
}

func defineStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <image>",
		Short: "Print cluster usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, img, err := mountImage(cmd, args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer img.Close()
			s, err := fsys.Stats()
			if err != nil {
				return err
			}
			bpc := uint64(fsys.Info().BytesPerCluster)
			fmt.Printf("Total:     %8d clusters (%s)\n", s.Total, humanize.IBytes(uint64(s.Total)*bpc))
			fmt.Printf("Allocated: %8d clusters (%s)\n", s.Allocated, humanize.IBytes(uint64(s.Allocated)*bpc))
			fmt.Printf("Free:      %8d clusters (%s)\n", s.Free, humanize.IBytes(uint64(s.Free)*bpc))
			return fsys.Unmount()
		},
	}
}

func defineFsckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck <image>",
		Short: "Audit cluster chains and find orphaned clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reclaim, _ := cmd.Flags().GetBool("reclaim")
			mode := fat.ModeRead
			if reclaim {
				mode = fat.ModeRW
			}
			fsys, img, err := mountImage(cmd, args[0], mode)
			if err != nil {
				return err
			}
			defer img.Close()
			res, err := fsys.CheckDisk(reclaim)
			fmt.Printf("Referenced: %d  Orphaned: %d  Freed: %d  CrossLinks: %d  BadChains: %d\n",
				res.Referenced, res.Orphaned, res.Freed, res.CrossLinks, res.BadChains)
			if err != nil {
				return err
			}
			return fsys.Unmount()
		},
	}
	cmd.Flags().Bool("reclaim", false, "free orphaned clusters")
	return cmd
}

func defineMkfsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkfs <image>",
		Short: "Create an MBR-partitioned FAT volume in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizeStr, _ := cmd.Flags().GetString("size")
			label, _ := cmd.Flags().GetString("label")
			variant, _ := cmd.Flags().GetString("type")
			spc, _ := cmd.Flags().GetUint8("sectors-per-cluster")

			size, err := humanize.ParseBytes(sizeStr)
			if err != nil {
				return fmt.Errorf("bad --size: %w", err)
			}
			cfg := fat.FormatConfig{Label: label, SectorsPerCluster: spc}
			switch strings.ToUpper(variant) {
			case "FAT32":
				cfg.Variant = fat.VariantFAT32
			case "FAT16":
				cfg.Variant = fat.VariantFAT16
			default:
				return fmt.Errorf("bad --type %q: want FAT16 or FAT32", variant)
			}

			img, err := os.OpenFile(args[0], os.O_RDWR|os.O_CREATE, 0o644)
			if err != nil {
				return err
			}
			defer img.Close()
			if err := img.Truncate(int64(size)); err != nil {
				return err
			}
			var f fat.Formatter
			if err := f.Format(img, uint32(size/512), cfg); err != nil {
				return err
			}
			fmt.Printf("formatted %s as %s\n", args[0], strings.ToUpper(variant))
			return nil
		},
	}
	cmd.Flags().String("size", "64MiB", "image size")
	cmd.Flags().String("label", "NO NAME", "volume label")
	cmd.Flags().String("type", "FAT32", "FAT16 or FAT32")
	cmd.Flags().Uint8("sectors-per-cluster", 8, "cluster size in sectors")
	return cmd
}
