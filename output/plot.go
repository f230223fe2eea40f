package output

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
)

const (
	panelHeight   = 480.0
	maxPanelWidth = 640.0
	margin        = 40.0
	colorbarWidth = 18.0
	statsBoxW     = 150.0
	statsBoxH     = 110.0
)

// Composite is the content of the analysis plot. RGB may be nil.
type Composite struct {
	Title string
	NDWI  *raster.Grid
	RGB   image.Image
	Stats ndwi.Stats
}

func panelScale(w, h int) float64 {
	s := panelHeight / float64(h)
	if float64(w)*s > maxPanelWidth {
		s = maxPanelWidth / float64(w)
	}
	return s
}

func drawPanel(dc *gg.Context, img image.Image, x, y float64) (float64, float64) {
	b := img.Bounds()
	s := panelScale(b.Dx(), b.Dy())
	dc.Push()
	dc.Translate(x, y)
	dc.Scale(s, s)
	dc.DrawImage(img, 0, 0)
	dc.Pop()

	w, h := float64(b.Dx())*s, float64(b.Dy())*s
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()
	dc.DrawStringAnchored("Pixel X", x+w/2, y+h+16, 0.5, 0.5)
	return w, h
}

func drawColorbar(dc *gg.Context, x, y, h float64) {
	for i := 0; i < int(h); i++ {
		c := valueToColor(1 - float64(i)/h)
		dc.SetColor(c)
		dc.DrawRectangle(x, y+float64(i), colorbarWidth, 1)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(x, y, colorbarWidth, h)
	dc.Stroke()

	for _, tick := range []float64{-1, -0.5, 0, 0.5, 1} {
		ty := y + h*(1-normalize(tick, VMin, VMax))
		dc.DrawLine(x+colorbarWidth, ty, x+colorbarWidth+4, ty)
		dc.Stroke()
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", tick), x+colorbarWidth+8, ty, 0, 0.5)
	}

	dc.Push()
	dc.RotateAbout(gg.Radians(90), x+colorbarWidth+45, y+h/2)
	dc.DrawStringAnchored("NDWI Value", x+colorbarWidth+45, y+h/2, 0.5, 0.5)
	dc.Pop()
}

func drawStats(dc *gg.Context, s ndwi.Stats, x, y float64) {
	dc.SetHexColor("#F5DEB3")
	dc.DrawRoundedRectangle(x, y, statsBoxW, statsBoxH, 8)
	dc.FillPreserve()
	dc.SetRGB(0, 0, 0)
	dc.Stroke()

	lines := []string{
		"NDWI Statistics:",
		fmt.Sprintf("Mean: %.3f", s.Mean),
		fmt.Sprintf("Std: %.3f", s.Std),
		fmt.Sprintf("Min: %.3f", s.Min),
		fmt.Sprintf("Max: %.3f", s.Max),
		fmt.Sprintf("Water %%: %.1f%%", s.WaterPercentage),
	}
	for i, line := range lines {
		dc.DrawString(line, x+10, y+20+float64(i)*16)
	}
}

// RenderComposite draws the NDWI panel with its colour bar, the optional RGB
// panel and the statistics box.
func RenderComposite(c Composite) (image.Image, error) {
	if c.NDWI == nil || c.NDWI.Width == 0 || c.NDWI.Height == 0 {
		return nil, errors.New("empty NDWI grid")
	}

	ndwiImg := NDWIImage(c.NDWI)
	s := panelScale(c.NDWI.Width, c.NDWI.Height)
	ndwiW := float64(c.NDWI.Width) * s

	width := margin + ndwiW + 20 + colorbarWidth + 70
	var rgbW float64
	if c.RGB != nil {
		b := c.RGB.Bounds()
		rgbW = float64(b.Dx()) * panelScale(b.Dx(), b.Dy())
		width += margin + rgbW
	}
	width += margin
	height := margin + 20 + panelHeight + 30 + statsBoxH + margin

	dc := gg.NewContext(int(width), int(height))
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)

	if c.Title != "" {
		dc.DrawStringAnchored(c.Title, width/2, margin/2, 0.5, 0.5)
	}

	top := margin + 20
	x := margin
	dc.DrawStringAnchored("NDWI (Normalized Difference Water Index)", x+ndwiW/2, top-10, 0.5, 0.5)
	_, h := drawPanel(dc, ndwiImg, x, top)
	drawColorbar(dc, x+ndwiW+20, top, h)

	if c.RGB != nil {
		rx := x + ndwiW + 20 + colorbarWidth + 70 + margin
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored("RGB Visualization", rx+rgbW/2, top-10, 0.5, 0.5)
		drawPanel(dc, c.RGB, rx, top)
	}

	drawStats(dc, c.Stats, margin, top+panelHeight+30)
	return dc.Image(), nil
}

func SaveComposite(path string, c Composite) error {
	img, err := RenderComposite(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func SaveMaskPNG(path string, mask []uint8, width, height int) error {
	if len(mask) != width*height {
		return fmt.Errorf("%w: %d mask values for %dx%d", raster.ErrSizeMismatch, len(mask), width, height)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create mask directory: %w", err)
	}
	if err := gg.SavePNG(path, MaskImage(mask, width, height)); err != nil {
		return fmt.Errorf("failed to save water mask image: %w", err)
	}
	return nil
}
