package modis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	sphereRadius = 6371007.181
	tileSize     = 1111950.5197665554
	gridWidth    = 36
	gridHeight   = 18
	sampleStep   = 0.25
)

// Extent is a geographic bounding box in degrees.
type Extent struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

// ParseExtent parses "minlon,maxlon,minlat,maxlat".
func ParseExtent(value string) (Extent, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return Extent{}, fmt.Errorf("extent %q must have four comma separated values", value)
	}
	values := []float64{}
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Extent{}, errors.Wrapf(err, "invalid extent value %q", part)
		}
		values = append(values, v)
	}
	extent := Extent{MinLon: values[0], MaxLon: values[1], MinLat: values[2], MaxLat: values[3]}
	if extent.MinLon >= extent.MaxLon || extent.MinLat >= extent.MaxLat ||
		extent.MinLon < -180 || extent.MaxLon > 180 || extent.MinLat < -90 || extent.MaxLat > 90 {
		return Extent{}, fmt.Errorf("invalid extent %q", value)
	}
	return extent, nil
}

// TileFor returns the MODLAND sinusoidal tile of a point as hHHvVV.
func TileFor(lon, lat float64) string {
	x := sphereRadius * lon * math.Pi / 180 * math.Cos(lat*math.Pi/180)
	y := sphereRadius * lat * math.Pi / 180
	h := int(math.Floor((x + gridWidth/2*tileSize) / tileSize))
	v := int(math.Floor((gridHeight/2*tileSize - y) / tileSize))
	if h > gridWidth-1 {
		h = gridWidth - 1
	}
	if v > gridHeight-1 {
		v = gridHeight - 1
	}
	if h < 0 {
		h = 0
	}
	if v < 0 {
		v = 0
	}
	return fmt.Sprintf("h%02dv%02d", h, v)
}

func steps(min, max float64) []float64 {
	result := []float64{}
	for v := min; v < max; v = v + sampleStep {
		result = append(result, v)
	}
	return append(result, max)
}

// Tiles returns the sorted MODLAND tiles intersecting the extent.
// The sinusoidal projection bends meridians, so the extent is sampled rather than projected by its corners.
func (e Extent) Tiles() []string {
	seen := map[string]struct{}{}
	for _, lat := range steps(e.MinLat, e.MaxLat) {
		for _, lon := range steps(e.MinLon, e.MaxLon) {
			seen[TileFor(lon, lat)] = struct{}{}
		}
	}
	result := []string{}
	for tile := range seen {
		result = append(result, tile)
	}
	sort.Strings(result)
	return result
}
