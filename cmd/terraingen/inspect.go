package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
)

func makeInspectCommand() *cobra.Command {
	var rasterPath string
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			tile, err := dat.ReadTile(path)
			if err != nil {
				return err
			}
			st := tile.Stats()
			fmt.Fprintf(out, "%s: degree %d,%d  %d records (%s)  stride %d  spacing %d\n",
				path, tile.LatDegrees, tile.LonDegrees, st.Records,
				humanize.Bytes(uint64(st.Records*dat.RecordSize)), st.Stride, st.Spacing)
			fmt.Fprintf(out, "  heights %d..%d  %s nonzero samples  %d/%d full bitmaps  %d empty\n",
				st.MinHeight, st.MaxHeight, humanize.Comma(int64(st.NonZero)), st.FullBitmaps, st.Records, st.Empty)
			if err := tile.Verify(); err != nil {
				failed++
				fmt.Fprintf(out, "  FAILED: %v\n", err)
			} else {
				fmt.Fprintln(out, "  ok")
			}

			if rasterPath != "" {
				if err := writeRaster(rasterPath, tile); err != nil {
					return err
				}
				fmt.Fprintf(out, "  raster written to %s\n", rasterPath)
			}
		}
		if failed > 0 {
			return errors.Newf("%d of %d files failed verification", failed, len(args))
		}
		return nil
	}
	command := &cobra.Command{
		Use:   "inspect <file.DAT>...",
		Short: "Verify terrain files and print a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCmdFunc,
	}
	command.Flags().StringVar(&rasterPath, "raster", "",
		"write the de-tiled heights as little-endian int16 rows, north first")
	return command
}

func writeRaster(path string, tile *dat.Tile) error {
	raster, err := tile.Detile()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, raster.Heights); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return f.Close()
}
