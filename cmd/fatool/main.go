// fatool inspects and manipulates FAT16/FAT32 disk images.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/embfs/fatfs"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "fatool",
		Short:         "Inspect and manipulate FAT16/FAT32 disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		defineInfoCommand(),
		defineLsCommand(),
		defineCatCommand(),
		defineCpCommand(),
		defineRmCommand(),
		defineStatsCommand(),
		defineFsckCommand(),
		defineMkfsCommand(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatool:", err)
		os.Exit(1)
	}
}

// mountImage opens the image file and mounts it, wiring the logger when
// --verbose is set. The caller closes the returned file.
func mountImage(cmd *cobra.Command, path string, mode fat.Mode) (*fat.FS, *os.File, error) {
	osflag := os.O_RDONLY
	if mode&fat.ModeWrite != 0 {
		osflag = os.O_RDWR
	}
	img, err := os.OpenFile(path, osflag, 0)
	if err != nil {
		return nil, nil, err
	}
	var fsys fat.FS
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fsys.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	if err := fsys.Mount(img, mode); err != nil {
		img.Close()
		return nil, nil, err
	}
	return &fsys, img, nil
}
