package sentinel

import (
	"errors"
	"fmt"

	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
)

var ErrMissingBand = errors.New("scene is missing a required band")

// Bands holds the asset hrefs used for an NDWI run. Visual is optional.
type Bands struct {
	Green  string
	NIR    string
	Visual string
}

func ResolveBands(item stac.Item) (Bands, error) {
	green, ok := item.Asset(stac.GreenAssetKeys...)
	if !ok {
		return Bands{}, fmt.Errorf("%w: green (B03) in %s", ErrMissingBand, item.ID)
	}
	nir, ok := item.Asset(stac.NIRAssetKeys...)
	if !ok {
		return Bands{}, fmt.Errorf("%w: nir (B08) in %s", ErrMissingBand, item.ID)
	}
	b := Bands{Green: green.Href, NIR: nir.Href}
	if visual, ok := item.Asset(stac.VisualAssetKeys...); ok {
		b.Visual = visual.Href
	}
	return b, nil
}
