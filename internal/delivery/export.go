package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/forest-guardian/ndwi-water-cli/internal/dataset"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/forest-guardian/ndwi-water-cli/internal/storage"
	"github.com/forest-guardian/ndwi-water-cli/output"
	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb/geojson"
)

// export writes the mask, previews and footprint on a worker pool, then
// records the run in the history CSV and uploads the outputs when configured.
func (a *Analyzer) export(ctx context.Context, req Request, res *Result, grid *raster.Grid) error {
	mask := ndwi.Classify(grid.Data, req.Threshold)

	var (
		mu   sync.Mutex
		errs []error
	)
	wp := workerpool.New(a.exportWorkers)
	submit := func(fn func() error) {
		wp.Submit(func() {
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}

	submit(func() error {
		return raster.WriteByte(res.Files.Mask, mask, grid, ndwi.MaskNoData)
	})
	submit(func() error {
		return output.SaveMaskPNG(res.Files.MaskPNG, mask, grid.Width, grid.Height)
	})
	submit(func() error {
		return output.WriteFootprint(res.Files.Footprint, a.footprint(req, res, grid))
	})
	if res.Files.Plot != "" {
		submit(func() error {
			composite := output.Composite{Title: res.Location.String(), NDWI: grid, Stats: res.Stats}
			if res.Files.Visual != "" {
				rgb, err := raster.ReadRGB(res.Files.Visual)
				if err != nil {
					a.logger.WithError(err).Warn("failed to read RGB preview, plotting NDWI only")
				} else {
					composite.RGB = rgb
				}
			}
			return output.SaveComposite(res.Files.Plot, composite)
		})
	}
	wp.StopWait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	var historyErr error
	a.locks.ExecuteWithMutex(a.cfg.HistoryPath(), func() {
		historyErr = dataset.AppendHistory(a.cfg.HistoryPath(), a.record(req, res))
	})
	if historyErr != nil {
		a.logger.WithError(historyErr).Warn("failed to record analysis history")
	}

	if a.uploader != nil && a.cfg.OutputS3URI != "" {
		return a.upload(ctx, res)
	}
	return nil
}

func (a *Analyzer) footprint(req Request, res *Result, grid *raster.Grid) output.Footprint {
	area, err := grid.LonLatBound()
	if err != nil {
		a.logger.WithError(err).Warn("failed to compute raster extent, using the requested box")
		area = req.Location.Bound(req.BufferKM)
	}
	fp := output.Footprint{
		Area: area,
		AreaProperties: geojson.Properties{
			"location":         res.Location.Name,
			"latitude":         res.Location.Lat,
			"longitude":        res.Location.Lon,
			"buffer_km":        req.BufferKM,
			"threshold":        req.Threshold,
			"mean_ndwi":        res.Stats.Mean,
			"water_percentage": res.Stats.WaterPercentage,
			"water_pixels":     res.Stats.WaterPixels,
			"total_pixels":     res.Stats.TotalPixels,
			"interpretation":   string(res.Interpretation.Level),
		},
		SceneProperties: geojson.Properties{
			"id":       res.Scene.ID,
			"datetime": res.Scene.Properties.Datetime,
			"platform": res.Scene.Properties.Platform,
		},
	}
	if cc, ok := res.Scene.CloudCover(); ok {
		fp.SceneProperties["eo:cloud_cover"] = cc
	}
	if g, err := res.Scene.Footprint(); err == nil {
		fp.Scene = g
	}
	return fp
}

func (a *Analyzer) record(req Request, res *Result) dataset.AnalysisRecord {
	cc, _ := res.Scene.CloudCover()
	return dataset.AnalysisRecord{
		RunAt:           a.clock.Now().UTC(),
		Location:        res.Location.Slug(),
		Latitude:        res.Location.Lat,
		Longitude:       res.Location.Lon,
		SceneID:         res.Scene.ID,
		SceneDate:       res.Scene.Properties.Datetime,
		CloudCover:      cc,
		BufferKM:        req.BufferKM,
		Threshold:       req.Threshold,
		MeanNDWI:        res.Stats.Mean,
		StdNDWI:         res.Stats.Std,
		MinNDWI:         res.Stats.Min,
		MaxNDWI:         res.Stats.Max,
		WaterPercentage: res.Stats.WaterPercentage,
		WaterPixels:     res.Stats.WaterPixels,
		TotalPixels:     res.Stats.TotalPixels,
		NoDataPixels:    res.Stats.NoDataPixels,
		Interpretation:  string(res.Interpretation.Level),
		NDWIPath:        res.Files.NDWI,
	}
}

func (a *Analyzer) upload(ctx context.Context, res *Result) error {
	base, err := storage.ParseS3URI(a.cfg.OutputS3URI)
	if err != nil {
		return err
	}
	for _, path := range res.Files.List() {
		dest := base.Join(res.Location.Slug(), res.Scene.ID, filepath.Base(path))
		uri, err := a.uploader.Upload(ctx, path, dest.String())
		if err != nil {
			return err
		}
		res.Files.Uploaded = append(res.Files.Uploaded, uri)
	}
	return nil
}
