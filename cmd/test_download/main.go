package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/forest-guardian/ndwi-water-cli/internal/sentinel"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func main() {
	// Hardcoded test parameters - modify these to test different scenarios
	key := "netherlands"
	daysBack := 30
	bufferKM := 1.0

	fmt.Println("=== NDWI Test Band Download ===")
	fmt.Printf("Location: %s\n", key)
	fmt.Printf("Days back: %d\n", daysBack)
	fmt.Printf("Buffer: %g km\n", bufferKM)
	fmt.Println()

	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		fmt.Println("Falling back to the public Earth Search catalog defaults.")
		fmt.Println()
	}

	cfg, err := properties.Load(viper.New())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	godal.RegisterAll()

	loc, err := location.Get(key)
	if err != nil {
		log.Fatalf("Failed to get location: %v", err)
	}
	fmt.Printf("✓ Location loaded: %s\n", loc)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -daysBack)
	fmt.Printf("Searching scenes from %s to %s...\n", start.Format(time.DateOnly), end.Format(time.DateOnly))

	client := stac.NewClient(cfg.STAC.URL,
		stac.WithHTTPClient(stac.NewHTTPClient(ctx, cfg.STAC, cfg.HTTPTimeout)),
		stac.WithRetries(cfg.STAC.Retries, cfg.STAC.RetryDelay),
	)
	items, err := client.Search(ctx, stac.SearchParams{
		Collections:   []string{cfg.STAC.Collection},
		BBox:          loc.Bound(bufferKM),
		Start:         start,
		End:           end,
		CloudCoverMax: cfg.CloudCoverMax,
		Limit:         cfg.STAC.Limit,
	})
	if err != nil {
		log.Fatalf("Failed to search catalog: %v", err)
	}

	item, err := stac.SelectBest(items, cfg.CloudCoverMax)
	if err != nil {
		fmt.Println("No scene was selected. This could mean:")
		fmt.Println("- No satellite data available for this date range")
		fmt.Println("- Every scene is above the cloud cover limit")
		os.Exit(1)
	}
	cc, _ := item.CloudCover()
	fmt.Printf("✓ Selected %s (%s, %.1f%% cloud)\n", item.ID, item.Properties.Datetime.Format(time.DateOnly), cc)

	bands, err := sentinel.ResolveBands(item)
	if err != nil {
		log.Fatalf("Failed to resolve bands: %v", err)
	}

	dir := cfg.ResultPath("test_download", item.ID)
	downloader := sentinel.NewDownloader()
	for name, href := range map[string]string{"green": bands.Green, "nir": bands.NIR} {
		dest := filepath.Join(dir, name+".tif")
		if err := downloader.Fetch(ctx, href, dest, loc.Bound(bufferKM)); err != nil {
			log.Fatalf("Failed to download %s band: %v", name, err)
		}

		grid, err := raster.ReadBand(dest, 1)
		if err != nil {
			log.Fatalf("Failed to read %s band: %v", name, err)
		}
		fmt.Printf("- %s: %s (size: %dx%d)\n", name, dest, grid.Width, grid.Height)
	}

	fmt.Println("\n✓ Test completed successfully!")
}
