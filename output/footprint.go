package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Footprint describes the analysed area and the scene it was cut from.
type Footprint struct {
	Area            orb.Bound
	AreaProperties  geojson.Properties
	Scene           orb.Geometry
	SceneProperties geojson.Properties
}

func (f Footprint) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	area := geojson.NewFeature(f.Area.ToPolygon())
	area.Properties = geojson.Properties{"kind": "analysis_area"}
	for k, v := range f.AreaProperties {
		area.Properties[k] = v
	}
	fc.Append(area)

	if f.Scene != nil {
		scene := geojson.NewFeature(f.Scene)
		scene.Properties = geojson.Properties{"kind": "scene"}
		for k, v := range f.SceneProperties {
			scene.Properties[k] = v
		}
		fc.Append(scene)
	}
	return fc
}

func WriteFootprint(path string, f Footprint) error {
	data, err := json.MarshalIndent(f.FeatureCollection(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create GeoJSON directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write GeoJSON file: %w", err)
	}
	return nil
}
