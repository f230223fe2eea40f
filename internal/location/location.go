package location

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

// KmPerDegree is the rough conversion used for buffers: 1 degree ≈ 111 km.
const KmPerDegree = 111.0

var ErrUnknownLocation = errors.New("location not found")

type Location struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	Description string  `json:"description"`
}

// Presets are the named areas available from the menu and the analyze command.
var Presets = map[string]Location{
	"new_york": {
		Key:         "new_york",
		Name:        "New York City",
		Lon:         -73.97,
		Lat:         40.78,
		Description: "Central Park area",
	},
	"san_francisco": {
		Key:         "san_francisco",
		Name:        "San Francisco Bay",
		Lon:         -122.42,
		Lat:         37.77,
		Description: "San Francisco Bay area",
	},
	"london": {
		Key:         "london",
		Name:        "London",
		Lon:         -0.13,
		Lat:         51.51,
		Description: "Central London",
	},
	"netherlands": {
		Key:         "netherlands",
		Name:        "Netherlands",
		Lon:         4.9,
		Lat:         52.4,
		Description: "Central Netherlands",
	},
	"custom": {
		Key:         "custom",
		Name:        "Custom Location",
		Lon:         0.0,
		Lat:         0.0,
		Description: "Your custom location",
	},
}

// Keys returns the preset keys in alphabetical order.
func Keys() []string {
	return utils.SortedKeys(Presets)
}

// Sorted returns every preset ordered by key.
func Sorted() []Location {
	locations := make([]Location, 0, len(Presets))
	for _, k := range Keys() {
		locations = append(locations, Presets[k])
	}
	return locations
}

func Get(key string) (Location, error) {
	loc, ok := Presets[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q, available: %s", ErrUnknownLocation, key, strings.Join(Keys(), ", "))
	}
	return loc, nil
}

// Custom builds an ad-hoc location after validating the coordinates.
func Custom(lat, lon float64) (Location, error) {
	if lat < -90 || lat > 90 {
		return Location{}, fmt.Errorf("latitude must be between -90 and 90 degrees, got %g", lat)
	}
	if lon < -180 || lon > 180 {
		return Location{}, fmt.Errorf("longitude must be between -180 and 180 degrees, got %g", lon)
	}
	return Location{
		Key:         "custom",
		Name:        fmt.Sprintf("Custom Location (%.4f°N, %.4f°E)", lat, lon),
		Lat:         lat,
		Lon:         lon,
		Description: "User supplied coordinates",
	}, nil
}

// ParseCoordinates parses the "lat, lon" form typed in the interactive menu.
func ParseCoordinates(input string) (Location, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("invalid format %q, use: latitude, longitude", input)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	return Custom(lat, lon)
}

func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// Bound returns the lon/lat box covering bufferKM around the location.
func (l Location) Bound(bufferKM float64) orb.Bound {
	d := bufferKM / KmPerDegree
	return orb.Bound{
		Min: orb.Point{l.Lon - d, l.Lat - d},
		Max: orb.Point{l.Lon + d, l.Lat + d},
	}
}

// Slug is a filesystem friendly name for result folders.
func (l Location) Slug() string {
	if l.Key != "" && l.Key != "custom" {
		return l.Key
	}
	return fmt.Sprintf("custom_%.4f_%.4f", l.Lat, l.Lon)
}

func (l Location) String() string {
	return fmt.Sprintf("%s (%.4f°N, %.4f°E)", l.Name, l.Lat, l.Lon)
}

// DateRange returns the window of daysBack days ending now.
func DateRange(clock clockwork.Clock, daysBack int) (time.Time, time.Time, error) {
	if daysBack <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("days back must be positive, got %d", daysBack)
	}
	end := clock.Now().UTC()
	start := end.AddDate(0, 0, -daysBack)
	return start, end, nil
}
