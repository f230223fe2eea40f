package ui

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/dataset"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
)

// PrintLocations lists the preset locations.
func PrintLocations() {
	WriteLocations(out)
}

func WriteLocations(w io.Writer) {
	fmt.Fprintln(w, "\nAvailable locations:")
	for _, loc := range location.Sorted() {
		if loc.Key == "custom" {
			continue
		}
		fmt.Fprintf(w, "  %-15s %s (%.4f°N, %.4f°E) - %s\n", loc.Key, loc.Name, loc.Lat, loc.Lon, loc.Description)
	}
}

func (m *Menu) ShowConfiguration() {
	WriteConfiguration(out, m.cfg)
}

func WriteConfiguration(w io.Writer, cfg *properties.Config) {
	fmt.Fprintln(w, "\nCurrent configuration:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, kv := range cfg.Summary() {
		value := kv[1]
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", kv[0], value)
	}
	tw.Flush()
}

func (m *Menu) ShowHistory() {
	records, err := dataset.LoadHistory(m.cfg.HistoryPath())
	if err != nil {
		PrintError(err.Error())
		return
	}
	if len(records) == 0 {
		PrintWarning("No analyses have been run yet.")
		return
	}
	WriteHistory(out, records, 10)
}

// WriteHistory prints up to limit records, newest first. limit <= 0 prints all.
func WriteHistory(w io.Writer, records []dataset.AnalysisRecord, limit int) {
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN AT\tLOCATION\tSCENE DATE\tCLOUD\tMEAN NDWI\tWATER %\tINTERPRETATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.3f\t%.1f\t%s\n",
			r.RunAt.Format(time.DateTime),
			r.Location,
			r.SceneDate.Format(time.DateOnly),
			r.CloudCover,
			r.MeanNDWI,
			r.WaterPercentage,
			r.Interpretation,
		)
	}
	tw.Flush()
}
