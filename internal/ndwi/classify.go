package ndwi

import (
	"errors"
	"fmt"
	"math"

	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
)

// Water mask pixel values.
const (
	MaskLand   uint8 = 0
	MaskWater  uint8 = 1
	MaskNoData uint8 = 255

	DefaultThreshold = 0.0
)

// ErrNoValidData is returned when a raster holds no finite NDWI value.
var ErrNoValidData = errors.New("no valid NDWI data found")

// Classify marks pixels above threshold as water.
func Classify(values []float64, threshold float64) []uint8 {
	mask := make([]uint8, len(values))
	for i, v := range values {
		switch {
		case !finite(v):
			mask[i] = MaskNoData
		case v > threshold:
			mask[i] = MaskWater
		default:
			mask[i] = MaskLand
		}
	}
	return mask
}

// Stats summarises the finite NDWI values of a raster.
type Stats struct {
	Count           int     `json:"count"`
	Mean            float64 `json:"mean"`
	Std             float64 `json:"std"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	WaterPercentage float64 `json:"water_percentage"`
	WaterPixels     int     `json:"water_pixels"`
	TotalPixels     int     `json:"total_pixels"`
	NoDataPixels    int     `json:"nodata_pixels"`
	Threshold       float64 `json:"threshold"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Analyze computes statistics over finite values. Std is the population
// standard deviation.
func Analyze(values []float64, threshold float64) (Stats, error) {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1), Threshold: threshold}
	var sum float64
	for _, v := range values {
		if !finite(v) {
			s.NoDataPixels++
			continue
		}
		s.Count++
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		if v > threshold {
			s.WaterPixels++
		}
	}
	if s.Count == 0 {
		return Stats{NoDataPixels: s.NoDataPixels, Threshold: threshold}, ErrNoValidData
	}

	s.Mean = sum / float64(s.Count)
	var sq float64
	for _, v := range values {
		if finite(v) {
			d := v - s.Mean
			sq += d * d
		}
	}
	s.Std = math.Sqrt(sq / float64(s.Count))
	s.TotalPixels = s.Count
	s.WaterPercentage = float64(s.WaterPixels) / float64(s.TotalPixels) * 100
	return s, nil
}

// AnalyzeFile reads an NDWI GeoTIFF and returns its statistics together with the grid.
func AnalyzeFile(path string, threshold float64) (Stats, *raster.Grid, error) {
	g, err := raster.ReadBand(path, 1)
	if err != nil {
		return Stats{}, nil, err
	}
	s, err := Analyze(g.Data, threshold)
	if err != nil {
		return s, g, fmt.Errorf("%s: %w", path, err)
	}
	return s, g, nil
}

// Level grades the share of water pixels in an analysis.
type Level string

const (
	LevelHigh     Level = "high"
	LevelModerate Level = "moderate"
	LevelLow      Level = "low"
	LevelVeryLow  Level = "very low"
)

// Interpretation is the human readable verdict for a water percentage.
type Interpretation struct {
	Level   Level  `json:"level"`
	Summary string `json:"summary"`
}

func (i Interpretation) String() string {
	return fmt.Sprintf("%s water content - %s", i.Level, i.Summary)
}

// Interpret grades waterPercentage: above 50 is high, above 20 moderate,
// above 5 low and anything else very low.
func Interpret(waterPercentage float64) Interpretation {
	switch {
	case waterPercentage > 50:
		return Interpretation{Level: LevelHigh, Summary: "likely a water body"}
	case waterPercentage > 20:
		return Interpretation{Level: LevelModerate, Summary: "mixed water/land area"}
	case waterPercentage > 5:
		return Interpretation{Level: LevelLow, Summary: "mostly land with some water features"}
	default:
		return Interpretation{Level: LevelVeryLow, Summary: "mostly land/urban area"}
	}
}
