package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(location string, runAt time.Time, pct float64) AnalysisRecord {
	return AnalysisRecord{
		RunAt:           runAt,
		Location:        location,
		Latitude:        51.51,
		Longitude:       -0.13,
		SceneID:         "S2B_30UXC_20240512_0_L2A",
		SceneDate:       time.Date(2024, 5, 12, 11, 6, 19, 0, time.UTC),
		CloudCover:      1.5,
		BufferKM:        2,
		MeanNDWI:        -0.21,
		WaterPercentage: pct,
		WaterPixels:     120,
		TotalPixels:     1600,
		Interpretation:  "low",
		NDWIPath:        "data/result/london/ndwi.tif",
	}
}

func TestHistory_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result", "history.csv")
	first := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, AppendHistory(path, record("london", first, 7.5)))
	require.NoError(t, AppendHistory(path, record("netherlands", second, 42)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "run_at"), "header written once")

	records, err := LoadHistory(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "netherlands", records[0].Location)
	assert.True(t, records[0].RunAt.Equal(second))
	assert.InDelta(t, 42, records[0].WaterPercentage, 1e-9)
	assert.Equal(t, "london", records[1].Location)
	assert.Equal(t, "S2B_30UXC_20240512_0_L2A", records[1].SceneID)
	assert.True(t, records[1].SceneDate.Equal(time.Date(2024, 5, 12, 11, 6, 19, 0, time.UTC)))
}

func TestLoadHistory_Missing(t *testing.T) {
	records, err := LoadHistory(filepath.Join(t.TempDir(), "history.csv"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppendHistory_NoRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, AppendHistory(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
