// Package ndwi computes the Normalized Difference Water Index from Sentinel-2
// green (B03) and near-infrared (B08) reflectance and classifies water pixels.
package ndwi

import (
	"fmt"

	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
)

// NoData is the value written for pixels without a finite NDWI.
const NoData = -9999.0

// Compute returns (green - nir) / (green + nir) for every pixel. A zero
// denominator yields 0; NaN inputs yield NaN.
func Compute(green, nir []float64) ([]float64, error) {
	if len(green) != len(nir) {
		return nil, fmt.Errorf("%w: green has %d pixels, nir has %d", raster.ErrSizeMismatch, len(green), len(nir))
	}
	out := make([]float64, len(green))
	for i := range green {
		g, n := green[i], nir[i]
		den := g + n
		if den == 0 {
			out[i] = 0
			continue
		}
		out[i] = (g - n) / den
	}
	return out, nil
}

// Calculate reads band 1 of the green and nir rasters, computes NDWI and
// writes it to outPath as a Float32 GeoTIFF georeferenced like the green band.
func Calculate(greenPath, nirPath, outPath string) (*raster.Grid, error) {
	green, err := raster.ReadBand(greenPath, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read green band: %w", err)
	}
	nir, err := raster.ReadBand(nirPath, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read nir band: %w", err)
	}
	if !green.SameSize(nir) {
		return nil, fmt.Errorf("%w: green is %dx%d, nir is %dx%d",
			raster.ErrSizeMismatch, green.Width, green.Height, nir.Width, nir.Height)
	}

	values, err := Compute(green.Data, nir.Data)
	if err != nil {
		return nil, err
	}
	out := raster.NewGrid(green.Width, green.Height, green)
	out.Data = values

	if err := raster.WriteFloat32(outPath, out, NoData); err != nil {
		return nil, fmt.Errorf("failed to save NDWI: %w", err)
	}
	return out, nil
}
