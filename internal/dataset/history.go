package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
)

// AnalysisRecord is one row of the analysis history CSV.
type AnalysisRecord struct {
	RunAt           time.Time `csv:"run_at"`
	Location        string    `csv:"location"`
	Latitude        float64   `csv:"latitude"`
	Longitude       float64   `csv:"longitude"`
	SceneID         string    `csv:"scene_id"`
	SceneDate       time.Time `csv:"scene_date"`
	CloudCover      float64   `csv:"cloud_cover"`
	BufferKM        float64   `csv:"buffer_km"`
	Threshold       float64   `csv:"threshold"`
	MeanNDWI        float64   `csv:"mean_ndwi"`
	StdNDWI         float64   `csv:"std_ndwi"`
	MinNDWI         float64   `csv:"min_ndwi"`
	MaxNDWI         float64   `csv:"max_ndwi"`
	WaterPercentage float64   `csv:"water_percentage"`
	WaterPixels     int       `csv:"water_pixels"`
	TotalPixels     int       `csv:"total_pixels"`
	NoDataPixels    int       `csv:"nodata_pixels"`
	Interpretation  string    `csv:"interpretation"`
	NDWIPath        string    `csv:"ndwi_path"`
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && info.Size() > 0
}

// AppendHistory adds records to the CSV at path, writing the header only
// when the file is new.
func AppendHistory(path string, records ...AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if !fileExists(path) {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create history file: %w", err)
		}
		defer file.Close()
		if err := gocsv.MarshalFile(&records, file); err != nil {
			return fmt.Errorf("failed to save history: %w", err)
		}
		return nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()
	if err := gocsv.MarshalWithoutHeaders(&records, file); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// LoadHistory returns every record in the CSV, newest first. A missing file
// is an empty history.
func LoadHistory(path string) ([]AnalysisRecord, error) {
	if !fileExists(path) {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var records []AnalysisRecord
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RunAt.After(records[j].RunAt)
	})
	return records, nil
}
