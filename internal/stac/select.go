package stac

import (
	"errors"
	"sort"
)

var ErrNoScenes = errors.New("no Sentinel-2 scenes match the search criteria")

// Rank drops items with unknown cloud cover, cloud cover at or above
// maxCloud, or without the green/nir assets, and orders the rest from least
// to most cloudy. Ties go to the most recent acquisition.
func Rank(items []Item, maxCloud float64) []Item {
	candidates := make([]Item, 0, len(items))
	for _, item := range items {
		cc, ok := item.CloudCover()
		if !ok || cc >= maxCloud {
			continue
		}
		if !item.HasNDWIBands() {
			continue
		}
		candidates = append(candidates, item)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, _ := candidates[i].CloudCover()
		cj, _ := candidates[j].CloudCover()
		if ci != cj {
			return ci < cj
		}
		return candidates[i].Properties.Datetime.After(candidates[j].Properties.Datetime)
	})
	return candidates
}

// SelectBest returns the least cloudy usable item.
func SelectBest(items []Item, maxCloud float64) (Item, error) {
	ranked := Rank(items, maxCloud)
	if len(ranked) == 0 {
		return Item{}, ErrNoScenes
	}
	return ranked[0], nil
}
