// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"math"
)

const (
	WKIDWGS84       = 4326
	WKIDWebMercator = 3857
)

type SpatialReference struct {
	WKID       int `json:"wkid,omitempty"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// ID returns the effective well-known id, preferring latestWkid when set
func (sr SpatialReference) ID() int {
	if sr.LatestWKID != 0 {
		return sr.LatestWKID
	}
	if sr.WKID == 102100 {
		return WKIDWebMercator
	}
	return sr.WKID
}

func (sr SpatialReference) String() string {
	return fmt.Sprintf("EPSG:%d", sr.ID())
}

// Point is a user-selected location. It is a value type and is never mutated
// after being captured.
type Point struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	Z                *float64         `json:"z,omitempty"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

func (p Point) String() string {
	if p.Z != nil {
		return fmt.Sprintf("(%.6f %.6f %.3f) %s", p.X, p.Y, *p.Z, p.SpatialReference)
	}
	return fmt.Sprintf("(%.6f %.6f) %s", p.X, p.Y, p.SpatialReference)
}

// Validate rejects non-finite coordinates, a missing spatial reference and
// out-of-range WGS84 coordinates
func (p Point) Validate() error {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return errors.New("point coordinates must be finite")
	}
	if p.Z != nil && (math.IsNaN(*p.Z) || math.IsInf(*p.Z, 0)) {
		return errors.New("point z must be finite")
	}
	if p.SpatialReference.ID() <= 0 {
		return errors.New("point spatial reference is required")
	}
	if p.SpatialReference.ID() == WKIDWGS84 && (p.X < -180 || p.X > 180 || p.Y < -90 || p.Y > 90) {
		return fmt.Errorf("point %s out of range", p)
	}
	return nil
}

// Geometry returns the point as an Esri JSON geometry
func (p Point) Geometry() Geometry {
	x, y := p.X, p.Y
	g := Geometry{X: &x, Y: &y}
	if p.Z != nil {
		z := *p.Z
		g.Z = &z
	}
	sr := p.SpatialReference
	g.SpatialReference = &sr
	return g
}

// Geometry is an Esri JSON geometry. Points carry x/y(/z), polygons carry
// rings and polylines carry paths.
type Geometry struct {
	X                *float64          `json:"x,omitempty"`
	Y                *float64          `json:"y,omitempty"`
	Z                *float64          `json:"z,omitempty"`
	Rings            [][][]float64     `json:"rings,omitempty"`
	Paths            [][][]float64     `json:"paths,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

func (g Geometry) IsPoint() bool   { return g.X != nil && g.Y != nil }
func (g Geometry) IsPolygon() bool { return len(g.Rings) > 0 }

// AsPoint converts a point geometry back into a Point.
func (g Geometry) AsPoint() (Point, bool) {
	if !g.IsPoint() {
		return Point{}, false
	}
	p := Point{X: *g.X, Y: *g.Y}
	if g.Z != nil {
		z := *g.Z
		p.Z = &z
	}
	if g.SpatialReference != nil {
		p.SpatialReference = *g.SpatialReference
	}
	return p, true
}

type Feature struct {
	Geometry   Geometry       `json:"geometry"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// FeatureSet is the Esri JSON feature collection used on both sides of the
// job API. A nil Features slice means the service sent no feature array at
// all, which callers treat differently from an empty one.
type FeatureSet struct {
	GeometryType     string            `json:"geometryType,omitempty"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
	Features         []Feature         `json:"features"`
}

func (fs FeatureSet) HasFeatureArray() bool { return fs.Features != nil }

// Geometries returns feature geometries with the set's spatial reference
// filled in where a feature omits its own
func (fs FeatureSet) Geometries() []Geometry {
	out := make([]Geometry, 0, len(fs.Features))
	for _, f := range fs.Features {
		g := f.Geometry
		if g.SpatialReference == nil && fs.SpatialReference != nil {
			sr := *fs.SpatialReference
			g.SpatialReference = &sr
		}
		out = append(out, g)
	}
	return out
}

// geoprocessing parameter names of the hydrology watershed task
const (
	ParamInputPoints       = "InputPoints"
	ParamSnapDistance      = "SnapDistance"
	ParamSnapDistanceUnits = "SnapDistanceUnits"
	ParamSourceDatabase    = "SourceDatabase"
	ParamGeneralize        = "Generalize"

	OutputWatershedArea = "WatershedArea"
	OutputSnappedPoints = "SnappedPoints"
)

const (
	DefaultSnapDistance      = "5000"
	DefaultSnapDistanceUnits = "Meters"
	DefaultSourceDatabase    = "FINEST"
	DefaultGeneralize        = "True"
)

type JobRequest struct {
	InputPoints       FeatureSet
	SnapDistance      string
	SnapDistanceUnits string
	SourceDatabase    string
	Generalize        string
}

// NewWatershedRequest wraps pt in a feature set with the fixed watershed parameters
func NewWatershedRequest(pt Point) JobRequest {
	sr := pt.SpatialReference
	return JobRequest{
		InputPoints: FeatureSet{
			GeometryType:     "esriGeometryPoint",
			SpatialReference: &sr,
			Features:         []Feature{{Geometry: pt.Geometry()}},
		},
		SnapDistance:      DefaultSnapDistance,
		SnapDistanceUnits: DefaultSnapDistanceUnits,
		SourceDatabase:    DefaultSourceDatabase,
		Generalize:        DefaultGeneralize,
	}
}

type JobStatus string

type JobHandle struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"jobStatus"`
}
