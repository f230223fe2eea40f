package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/delivery"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/rpc"
	"github.com/forest-guardian/ndwi-water-cli/internal/ui"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

type analyzeFlags struct {
	lat, lon   float64
	daysBack   int
	start, end string
	bufferKM   float64
	cloudCover float64
	threshold  float64
	noPlot     bool
	asJSON     bool
	server     string
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&f.lat, "lat", 0, "latitude of a custom location")
	flags.Float64Var(&f.lon, "lon", 0, "longitude of a custom location")
	flags.IntVar(&f.daysBack, "days-back", 0, "search the last N days (default DAYS_BACK)")
	flags.StringVar(&f.start, "start", "", "start date YYYY-MM-DD, overrides --days-back")
	flags.StringVar(&f.end, "end", "", "end date YYYY-MM-DD, defaults to today")
	flags.Float64Var(&f.bufferKM, "buffer-km", 0, "clip radius around the location in km (default BUFFER_KM)")
	flags.Float64Var(&f.cloudCover, "cloud-cover", 0, "maximum scene cloud cover in percent (default CLOUD_COVER_MAX)")
	flags.Float64Var(&f.threshold, "threshold", 0, "NDWI water threshold (default WATER_THRESHOLD)")
}

// location resolves the positional preset key or the --lat/--lon pair.
func (f *analyzeFlags) location(cmd *cobra.Command, args []string) (location.Location, error) {
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return location.Location{}, fmt.Errorf("--lat and --lon must be given together")
		}
		return location.Custom(f.lat, f.lon)
	}
	if len(args) == 0 {
		return location.Location{}, fmt.Errorf("a location key or --lat/--lon is required, available: %v", location.Keys())
	}
	return location.Get(args[0])
}

func (f *analyzeFlags) apply(cmd *cobra.Command, req delivery.Request) (delivery.Request, error) {
	flags := cmd.Flags()
	if flags.Changed("days-back") {
		req.DaysBack = f.daysBack
	}
	if flags.Changed("buffer-km") {
		req.BufferKM = f.bufferKM
	}
	if flags.Changed("cloud-cover") {
		req.CloudCoverMax = f.cloudCover
	}
	if flags.Changed("threshold") {
		req.Threshold = f.threshold
	}
	if f.noPlot {
		req.Plot = false
	}
	if f.start != "" {
		start, err := time.Parse(time.DateOnly, f.start)
		if err != nil {
			return req, fmt.Errorf("invalid --start: %w", err)
		}
		end := time.Now().UTC()
		if f.end != "" {
			if end, err = time.Parse(time.DateOnly, f.end); err != nil {
				return req, fmt.Errorf("invalid --end: %w", err)
			}
		}
		req.Start, req.End = start, end
	} else if f.end != "" {
		return req, fmt.Errorf("--end requires --start")
	}
	return req, nil
}

// rpcParams mirrors the flags that were set as request fields of the
// analysis service.
func (f *analyzeFlags) rpcParams(cmd *cobra.Command, loc location.Location) map[string]interface{} {
	params := map[string]interface{}{"plot": !f.noPlot}
	if loc.Key == "custom" {
		params["lat"], params["lon"] = loc.Lat, loc.Lon
	} else {
		params["location"] = loc.Key
	}
	flags := cmd.Flags()
	if flags.Changed("days-back") {
		params["days_back"] = f.daysBack
	}
	if flags.Changed("buffer-km") {
		params["buffer_km"] = f.bufferKM
	}
	if flags.Changed("cloud-cover") {
		params["cloud_cover"] = f.cloudCover
	}
	if flags.Changed("threshold") {
		params["threshold"] = f.threshold
	}
	if f.start != "" {
		params["start"] = f.start
	}
	if f.end != "" {
		params["end"] = f.end
	}
	return params
}

func newAnalyzeCmd() *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze [location]",
		Short: "Run an NDWI analysis for a preset location or coordinates",
		Example: `  ndwi analyze netherlands
  ndwi analyze --lat 40.78 --lon -73.97 --days-back 60 --cloud-cover 10
  ndwi analyze london --server localhost:50051`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := f.location(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if f.server != "" {
				return analyzeRemote(ctx, f.server, f.rpcParams(cmd, loc))
			}

			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			req, err := f.apply(cmd, a.analyzer.DefaultRequest(loc))
			if err != nil {
				return err
			}
			res, err := a.analyzer.Run(ctx, req)
			if err != nil {
				ui.PrintError(err.Error())
				ui.WriteTroubleshooting(cmd.OutOrStdout(), err)
				return err
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			ui.WriteResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.noPlot, "no-plot", false, "skip the composite PNG")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&f.server, "server", "", "run the analysis on a remote ndwi server (host:port)")
	return cmd
}

func analyzeRemote(ctx context.Context, addr string, params map[string]interface{}) error {
	client, err := rpc.NewAnalysisClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.Analyze(ctx, params)
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func newSearchCmd() *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "search [location]",
		Short: "List the usable Sentinel-2 scenes for a location, best first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := f.location(cmd, args)
			if err != nil {
				return err
			}
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			req, err := f.apply(cmd, a.analyzer.DefaultRequest(loc))
			if err != nil {
				return err
			}
			items, err := a.analyzer.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				ui.PrintWarning("No scenes found. Try a longer date range or a higher cloud cover limit.")
				return nil
			}
			writeScenes(cmd.OutOrStdout(), items, loc)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
