package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/terrain"
)

func makeGenerateCommand(g *globalFlags) *cobra.Command {
	var bbox string
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		degrees, err := parseDegrees(args, bbox)
		if err != nil {
			return err
		}
		p, err := g.pipeline()
		if err != nil {
			return err
		}
		defer p.close()

		start := time.Now()
		results, err := p.service.GenerateDegrees(cmd.Context(), degrees, p.cfg.Output.Spacing, p.profile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var written, pending int
		var total int64
		for _, res := range results {
			switch res.State {
			case dat.StateReady:
				written++
				total += res.Bytes
				fmt.Fprintf(out, "%s  %s  %d blocks  %s\n", res.Name, res.State, res.Blocks, humanize.Bytes(uint64(res.Bytes)))
			case dat.StatePending:
				pending++
				fmt.Fprintf(out, "%s  %s  waiting on %d cells\n", res.Name, res.State, len(res.Pending))
			default:
				fmt.Fprintf(out, "%s  %s\n", res.Name, res.State)
			}
		}
		fmt.Fprintf(out, "%d of %d tiles written, %s in %s\n",
			written, len(results), humanize.Bytes(uint64(total)), time.Since(start).Round(time.Millisecond))
		if pending > 0 {
			return errors.Newf("%d tiles still waiting on source data", pending)
		}
		return nil
	}
	command := &cobra.Command{
		Use:   "generate [DEGREE...] (flags)",
		Short: "Build the terrain files of whole degrees",
		Long: `Build the terrain files of whole degrees. A degree is named by its
south-west corner, either as a tile name (S45E171) or as lat,lon (-45,171).
Put -- before a lat,lon pair that starts with a minus sign.`,
		RunE: runCmdFunc,
	}
	command.Flags().StringVar(&bbox, "bbox", "", "min_lat,min_lon,max_lat,max_lon in whole degrees")
	return command
}

func parseDegrees(args []string, bbox string) ([]terrain.Degree, error) {
	var degrees []terrain.Degree
	if bbox != "" {
		parts, err := parseInts(bbox, 4)
		if err != nil {
			return nil, errors.Wrapf(err, "--bbox")
		}
		box, err := terrain.DegreesInBox(parts[0], parts[1], parts[2], parts[3])
		if err != nil {
			return nil, err
		}
		degrees = append(degrees, box...)
	}
	for _, arg := range args {
		d, err := parseDegree(arg)
		if err != nil {
			return nil, err
		}
		degrees = append(degrees, d)
	}
	if len(degrees) == 0 {
		return nil, errors.New("no degrees given")
	}
	return degrees, nil
}

func parseDegree(s string) (terrain.Degree, error) {
	if strings.Contains(s, ",") {
		parts, err := parseInts(s, 2)
		if err != nil {
			return terrain.Degree{}, errors.Wrapf(err, "degree %q", s)
		}
		return terrain.Degree{Lat: parts[0], Lon: parts[1]}, nil
	}
	lat, lon, err := dat.ParseFileName(s)
	if err != nil {
		return terrain.Degree{}, err
	}
	return terrain.Degree{Lat: lat, Lon: lon}, nil
}

func parseInts(s string, n int) ([]int, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, errors.Newf("want %d comma separated integers, got %q", n, s)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
