package vectordb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Feature is a GeoJSON feature reduced to what is loaded into the database.
type Feature struct {
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type featureCollection struct {
	Features []Feature `json:"features"`
}

type geometryHeader struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ReadFeatures reads the features of a GeoJSON feature collection.
func ReadFeatures(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading GeoJSON file")
	}
	collection := &featureCollection{}
	if err := json.Unmarshal(data, collection); err != nil {
		return nil, errors.Wrap(err, "failed parsing GeoJSON file")
	}
	return collection.Features, nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampLineString clamps each coordinate of a LineString geometry into world extents.
func ClampLineString(geometry json.RawMessage) (json.RawMessage, error) {
	header := &geometryHeader{}
	if err := json.Unmarshal(geometry, header); err != nil {
		return nil, errors.Wrap(err, "invalid geometry")
	}
	if header.Type != "LineString" {
		return nil, fmt.Errorf("expected LineString, got %s", header.Type)
	}
	coords := [][]float64{}
	if err := json.Unmarshal(header.Coordinates, &coords); err != nil {
		return nil, errors.Wrap(err, "invalid LineString coordinates")
	}
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d dimensions", i, len(c))
		}
		coords[i] = []float64{clamp(c[0], -180, 180), clamp(c[1], -90, 90)}
	}
	return json.Marshal(map[string]interface{}{
		"type":        "LineString",
		"coordinates": coords,
	})
}

// GeometryType returns the type of a GeoJSON geometry.
func GeometryType(geometry json.RawMessage) (string, error) {
	header := &geometryHeader{}
	if err := json.Unmarshal(geometry, header); err != nil {
		return "", errors.Wrap(err, "invalid geometry")
	}
	return header.Type, nil
}
