package stac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	older := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)

	noCloud := testItem("unknown", 0, newer)
	noCloud.Properties.CloudCover = nil

	noNIR := testItem("no-nir", 1, newer)
	delete(noNIR.Assets, "nir")

	items := []Item{
		testItem("cloudy", 35, newer),
		testItem("older-tie", 4, older),
		noCloud,
		testItem("clear", 2, older),
		testItem("newer-tie", 4, newer),
		noNIR,
		testItem("edge", 20, newer),
	}

	ranked := Rank(items, 20)
	ids := make([]string, 0, len(ranked))
	for _, it := range ranked {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"clear", "newer-tie", "older-tie"}, ids)
}

func TestSelectBest(t *testing.T) {
	day := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)

	best, err := SelectBest([]Item{testItem("a", 12, day), testItem("b", 3.5, day)}, 20)
	require.NoError(t, err)
	assert.Equal(t, "b", best.ID)

	_, err = SelectBest([]Item{testItem("a", 50, day)}, 20)
	assert.ErrorIs(t, err, ErrNoScenes)

	_, err = SelectBest(nil, 20)
	assert.ErrorIs(t, err, ErrNoScenes)
}
