package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/output"
	"github.com/spf13/cobra"
)

type mapFlags struct {
	bbox     string
	datetime string
	formats  []string
	name     string
	scale    int
	quiet    bool
}

// newMapCommand creates the decision and probability commands; mode is the
// command name.
func newMapCommand(root *rootFlags, mode, short string) *cobra.Command {
	flags := &mapFlags{}
	cmd := &cobra.Command{
		Use:     mode,
		Short:   short,
		Example: fmt.Sprintf("  floodmapper %s --bbox 16.06,48.06,16.65,48.35 --datetime 2022-10-11/2022-10-25", mode),
		RunE: func(cmd *cobra.Command, _ []string) error {
			bbox, err := catalog.ParseBBoxString(flags.bbox)
			if err != nil {
				return err
			}
			for _, f := range flags.formats {
				if !isFormat(f) {
					return fmt.Errorf("unknown output format %q, want one of %s", f, strings.Join(output.Formats, ", "))
				}
			}

			a, err := newApp(root, !flags.quiet)
			if err != nil {
				return err
			}
			defer a.Close()

			interval, err := catalog.ParseDatetime(flags.datetime, a.clock)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := a.mapper.Run(ctx, delivery.Request{BBox: bbox, Datetime: interval, Mode: mode})
			if err != nil {
				a.notify(ctx, fmt.Sprintf("Flood mapper\n\nError mapping floods: %s", err.Error()), true)
				return err
			}

			paths, err := output.Export(res, output.Options{
				Dir:     a.cfg.Output.Dir,
				Name:    flags.name,
				Formats: flags.formats,
				Scale:   flags.scale,
			})
			if err != nil {
				a.notify(ctx, fmt.Sprintf("Flood mapper\n\nError writing results: %s", err.Error()), true)
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range res.Summaries {
				fmt.Fprintf(out, "%s valid=%d flooded=%d fraction=%.4f\n", s.Time.UTC().Format("2006-01-02T15:04:05Z"), s.Valid, s.Flooded, s.Fraction)
			}
			msg := fmt.Sprintf("Successful analysis!\nResults located at:\n%s", strings.Join(paths, "\n"))
			color.New(color.FgGreen).Fprintln(out, msg)
			a.notify(ctx, "Flood mapper\n\n"+msg, false)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.bbox, "bbox", "", "bounding box minLon,minLat,maxLon,maxLat in degrees")
	cmd.Flags().StringVar(&flags.datetime, "datetime", "", "time range, e.g. 2022-10-11/2022-10-25, 2022-10 or 2022-10-01/..")
	cmd.Flags().StringSliceVar(&flags.formats, "format", []string{output.FormatGeoTIFF}, "output formats: "+strings.Join(output.Formats, ", "))
	cmd.Flags().StringVar(&flags.name, "name", "", "base name of the output files (default <mode>_<request id>)")
	cmd.Flags().IntVar(&flags.scale, "scale", 1, "pixel size of PNG and video output")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "hide the loading progress bar")
	_ = cmd.MarkFlagRequired("bbox")
	_ = cmd.MarkFlagRequired("datetime")
	return cmd
}

func isFormat(f string) bool {
	for _, known := range output.Formats {
		if f == known {
			return true
		}
	}
	return false
}
