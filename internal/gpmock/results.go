package gpmock

import "github.com/mohammed-shakir/watershed-gateway/internal/core/model"

const (
	watershedHalfSize = 0.05
	snapOffset        = 0.001
)

// a clockwise square around each input point
func watershedAround(in model.FeatureSet) model.FeatureSet {
	out := model.FeatureSet{
		GeometryType:     "esriGeometryPolygon",
		SpatialReference: in.SpatialReference,
		Features:         []model.Feature{},
	}
	for i, p := range points(in) {
		d := watershedHalfSize
		ring := [][]float64{
			{p.X - d, p.Y - d},
			{p.X - d, p.Y + d},
			{p.X + d, p.Y + d},
			{p.X + d, p.Y - d},
			{p.X - d, p.Y - d},
		}
		out.Features = append(out.Features, model.Feature{
			Geometry:   model.Geometry{Rings: [][][]float64{ring}},
			Attributes: map[string]any{"OBJECTID": i + 1, "PourPtID": i + 1, "Description": "mock watershed"},
		})
	}
	return out
}

func snappedFrom(in model.FeatureSet) model.FeatureSet {
	out := model.FeatureSet{
		GeometryType:     "esriGeometryPoint",
		SpatialReference: in.SpatialReference,
		Features:         []model.Feature{},
	}
	for i, p := range points(in) {
		x, y := p.X+snapOffset, p.Y+snapOffset
		out.Features = append(out.Features, model.Feature{
			Geometry:   model.Geometry{X: &x, Y: &y},
			Attributes: map[string]any{"OBJECTID": i + 1, "PourPtID": i + 1, "SnapDistance": 5000},
		})
	}
	return out
}

func points(fs model.FeatureSet) []model.Point {
	var out []model.Point
	for _, g := range fs.Geometries() {
		if p, ok := g.AsPoint(); ok {
			out = append(out, p)
		}
	}
	return out
}

// SnapOffset is the shift applied to derived snapped points
func SnapOffset() float64 { return snapOffset }
