package output

import (
	"image"
	"image/color"
	"math"

	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
)

// NDWI colour scale limits.
const (
	VMin = -1.0
	VMax = 1.0
)

// rdYlBuR is the reversed ColorBrewer RdYlBu ramp: blue for low NDWI, red for high.
var rdYlBuR = []color.RGBA{
	{49, 54, 149, 255},
	{69, 117, 180, 255},
	{116, 173, 209, 255},
	{171, 217, 233, 255},
	{224, 243, 248, 255},
	{255, 255, 191, 255},
	{254, 224, 144, 255},
	{253, 174, 97, 255},
	{244, 109, 67, 255},
	{215, 48, 39, 255},
	{165, 0, 38, 255},
}

var (
	NoDataColor = color.RGBA{255, 255, 255, 0}
	WaterColor  = color.RGBA{30, 100, 200, 255}
	LandColor   = color.RGBA{222, 203, 164, 255}
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// valueToColor maps a value in [0, 1] onto the colour ramp.
func valueToColor(norm float64) color.RGBA {
	pos := norm * float64(len(rdYlBuR)-1)
	i := int(math.Floor(pos))
	if i >= len(rdYlBuR)-1 {
		return rdYlBuR[len(rdYlBuR)-1]
	}
	t := pos - float64(i)
	a, b := rdYlBuR[i], rdYlBuR[i+1]
	return color.RGBA{R: lerp(a.R, b.R, t), G: lerp(a.G, b.G, t), B: lerp(a.B, b.B, t), A: 255}
}

// NDWIColor returns the display colour for an NDWI value clipped to [VMin, VMax].
func NDWIColor(v float64) color.RGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoDataColor
	}
	return valueToColor(normalize(v, VMin, VMax))
}

func NDWIImage(g *raster.Grid) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			img.SetRGBA(x, y, NDWIColor(g.At(x, y)))
		}
	}
	return img
}

func MaskImage(mask []uint8, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch mask[y*width+x] {
			case ndwi.MaskWater:
				img.SetRGBA(x, y, WaterColor)
			case ndwi.MaskLand:
				img.SetRGBA(x, y, LandColor)
			default:
				img.SetRGBA(x, y, NoDataColor)
			}
		}
	}
	return img
}
