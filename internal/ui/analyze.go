package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/delivery"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
)

func (m *Menu) UsePredefinedLocation() {
	PrintLocations()
	for {
		key, err := ReadString("Enter location key (or 'list' to see options): ")
		if err != nil {
			return
		}
		if strings.EqualFold(key, "list") {
			PrintLocations()
			continue
		}
		loc, err := location.Get(key)
		if err != nil {
			PrintError(err.Error())
			continue
		}
		PrintSuccess(fmt.Sprintf("Selected: %s", loc.Name))
		fmt.Fprintf(out, "   Coordinates: %.4f°N, %.4f°E\n", loc.Lat, loc.Lon)
		fmt.Fprintf(out, "   Description: %s\n", loc.Description)
		m.runAnalysis(loc)
		return
	}
}

func (m *Menu) UseCustomCoordinates() {
	fmt.Fprintln(out, "\nEnter latitude and longitude coordinates.")
	fmt.Fprintln(out, "Example: 40.78, -73.97 (New York City)")
	for {
		input, err := ReadString("Enter coordinates (lat, lon): ")
		if err != nil {
			return
		}
		loc, err := location.ParseCoordinates(input)
		if err != nil {
			PrintError(err.Error())
			continue
		}
		PrintSuccess(fmt.Sprintf("Coordinates: %.4f°N, %.4f°E", loc.Lat, loc.Lon))
		m.runAnalysis(loc)
		return
	}
}

func (m *Menu) runAnalysis(loc location.Location) {
	req := m.runner.DefaultRequest(loc)
	PrintHeader(fmt.Sprintf("Starting NDWI analysis for %s", loc.Name))
	fmt.Fprintf(out, "Location: %.4f°N, %.4f°E\n", loc.Lat, loc.Lon)
	fmt.Fprintf(out, "Date range: last %d days\n", req.DaysBack)
	fmt.Fprintf(out, "Search radius: %g km\n", req.BufferKM)
	fmt.Fprintf(out, "Max cloud cover: %g%%\n", req.CloudCoverMax)

	res, err := m.runner.Run(m.ctx, req)
	if err != nil {
		PrintError(fmt.Sprintf("Error during analysis: %s", err))
		WriteTroubleshooting(out, err)
		return
	}
	WriteResult(out, res)
}

// WriteResult prints the files, statistics and interpretation of res.
func WriteResult(w io.Writer, res *delivery.Result) {
	green.Fprintln(w, "\nAnalysis completed successfully!")

	cloud := "N/A"
	if cc, ok := res.Scene.CloudCover(); ok {
		cloud = fmt.Sprintf("%.1f%%", cc)
	}
	fmt.Fprintf(w, "Scene: %s (%s, cloud cover %s)\n", res.Scene.ID, res.Scene.Properties.Datetime.Format(time.DateOnly), cloud)
	fmt.Fprintf(w, "Date range: %s to %s, %d candidate scene(s)\n", res.Start.Format(time.DateOnly), res.End.Format(time.DateOnly), res.Candidates)

	fmt.Fprintln(w, "Files created:")
	for _, f := range res.Files.List() {
		fmt.Fprintf(w, "   %s\n", f)
	}
	for _, u := range res.Files.Uploaded {
		fmt.Fprintf(w, "   uploaded: %s\n", u)
	}

	WriteStats(w, res.Stats)

	fmt.Fprintln(w, "\nInterpretation:")
	fmt.Fprintf(w, "   %s\n", capitalize(res.Interpretation.String()))
	if res.Duration > 0 {
		fmt.Fprintf(w, "\nCompleted in %s\n", res.Duration.Round(time.Second))
	}
}

func WriteStats(w io.Writer, s ndwi.Stats) {
	fmt.Fprintln(w, "\nNDWI Analysis Results:")
	fmt.Fprintf(w, "   Mean NDWI: %.3f\n", s.Mean)
	fmt.Fprintf(w, "   Std NDWI: %.3f\n", s.Std)
	fmt.Fprintf(w, "   Min NDWI: %.3f\n", s.Min)
	fmt.Fprintf(w, "   Max NDWI: %.3f\n", s.Max)
	fmt.Fprintf(w, "   Water percentage: %.1f%%\n", s.WaterPercentage)
	fmt.Fprintf(w, "   Water pixels: %d\n", s.WaterPixels)
	fmt.Fprintf(w, "   Total pixels: %d\n", s.TotalPixels)
	if s.NoDataPixels > 0 {
		fmt.Fprintf(w, "   NoData pixels: %d\n", s.NoDataPixels)
	}
}

func WriteTroubleshooting(w io.Writer, err error) {
	fmt.Fprintln(w, "\nTroubleshooting tips:")
	switch {
	case errors.Is(err, stac.ErrNoScenes):
		fmt.Fprintln(w, "- The area might not have recent cloud-free imagery")
		fmt.Fprintln(w, "- Increase DAYS_BACK or CLOUD_COVER_MAX")
	case errors.Is(err, ndwi.ErrNoValidData):
		fmt.Fprintln(w, "- The clipped area contains only nodata pixels")
		fmt.Fprintln(w, "- Increase BUFFER_KM or try a different location")
	default:
		fmt.Fprintln(w, "- Check your internet connection")
		fmt.Fprintln(w, "- Verify the coordinates are valid")
		fmt.Fprintln(w, "- Try a different location or time range")
		fmt.Fprintln(w, "- The area might not have recent cloud-free imagery")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
