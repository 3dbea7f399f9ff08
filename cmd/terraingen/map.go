package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func makeMapCommand(g *globalFlags) *cobra.Command {
	var asJSON bool
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "latitude")
		}
		lon, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Wrapf(err, "longitude")
		}
		p, err := g.pipeline()
		if err != nil {
			return err
		}
		defer p.close()

		rep, err := p.service.MapDegree(lat, lon, p.cfg.Output.Spacing, p.profile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		fmt.Fprintf(out, "degree %d,%d  format %s  spacing %dm  %s samples\n",
			rep.LatDegrees, rep.LonDegrees, rep.Profile, rep.Spacing, humanize.Comma(int64(rep.Samples)))
		fmt.Fprintf(out, "round trip: lat %d, lon %d (1e-7 deg), %.3fm on the ground\n",
			rep.RoundTripLat, rep.RoundTripLon, rep.RoundTripM)
		fmt.Fprintf(out, "flat vs great circle: mean %.3fm  p99 %.3fm  max %.3fm\n",
			rep.FlatError.Mean, rep.FlatError.P99, rep.FlatError.Max)
		return nil
	}
	command := &cobra.Command{
		Use:   "map <lat> <lon>",
		Short: "Report how the block grid of a degree maps onto the ground",
		Args:  cobra.ExactArgs(2),
		RunE:  runCmdFunc,
	}
	command.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return command
}
