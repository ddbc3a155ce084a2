package model

import (
	"errors"
	"fmt"
)

type GeoJSONGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type GeoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   GeoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type GeoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
}

// GeoJSON converts an Esri JSON geometry. Esri polygons list outer rings
// clockwise and holes counter-clockwise; holes attach to the preceding outer ring.
func (g Geometry) GeoJSON() (GeoJSONGeometry, error) {
	switch {
	case g.IsPoint():
		c := []float64{*g.X, *g.Y}
		if g.Z != nil {
			c = append(c, *g.Z)
		}
		return GeoJSONGeometry{Type: "Point", Coordinates: c}, nil
	case g.IsPolygon():
		polys, err := groupRings(g.Rings)
		if err != nil {
			return GeoJSONGeometry{}, err
		}
		if len(polys) == 1 {
			return GeoJSONGeometry{Type: "Polygon", Coordinates: polys[0]}, nil
		}
		return GeoJSONGeometry{Type: "MultiPolygon", Coordinates: polys}, nil
	case len(g.Paths) > 0:
		if len(g.Paths) == 1 {
			return GeoJSONGeometry{Type: "LineString", Coordinates: g.Paths[0]}, nil
		}
		return GeoJSONGeometry{Type: "MultiLineString", Coordinates: g.Paths}, nil
	default:
		return GeoJSONGeometry{}, errors.New("empty or unsupported geometry")
	}
}

func groupRings(rings [][][]float64) ([][][][]float64, error) {
	var out [][][][]float64
	for i, ring := range rings {
		if len(ring) < 4 {
			return nil, fmt.Errorf("ring %d has <4 points", i)
		}
		for _, xy := range ring {
			if len(xy) < 2 {
				return nil, fmt.Errorf("ring %d: coordinate must be [x,y]", i)
			}
		}
		if signedArea(ring) <= 0 || len(out) == 0 {
			out = append(out, [][][]float64{ring})
			continue
		}
		last := len(out) - 1
		out[last] = append(out[last], ring)
	}
	return out, nil
}

// shoelace; negative for clockwise rings
func signedArea(ring [][]float64) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return a / 2
}
