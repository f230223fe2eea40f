package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/dataset"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/forest-guardian/ndwi-water-cli/internal/ui"
	"github.com/spf13/cobra"
)

func writeScenes(w io.Writer, items []stac.Item, loc location.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tDATE\tCLOUD\tPLATFORM\tCOVERS POINT")
	for _, item := range items {
		cloud := "N/A"
		if cc, ok := item.CloudCover(); ok {
			cloud = fmt.Sprintf("%.1f%%", cc)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
			item.ID,
			item.Properties.Datetime.Format(time.DateOnly),
			cloud,
			item.Properties.Platform,
			item.Covers(loc.Point()),
		)
	}
	tw.Flush()
}

func newStatsCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "stats <ndwi.tif>",
		Short: "Compute water statistics for an existing NDWI GeoTIFF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.WaterThreshold
			}
			stats, _, err := ndwi.AnalyzeFile(args[0], threshold)
			if err != nil {
				return err
			}
			ui.WriteStats(cmd.OutOrStdout(), stats)
			fmt.Fprintf(cmd.OutOrStdout(), "\nInterpretation: %s\n", ndwi.Interpret(stats.WaterPercentage))
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "NDWI water threshold (default WATER_THRESHOLD)")
	return cmd
}

func newLocationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List the preset locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.WriteLocations(cmd.OutOrStdout())
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			ui.WriteConfiguration(cmd.OutOrStdout(), a.cfg)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			records, err := dataset.LoadHistory(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analyses have been run yet.")
				return nil
			}
			ui.WriteHistory(cmd.OutOrStdout(), records, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show, 0 for all")
	return cmd
}
