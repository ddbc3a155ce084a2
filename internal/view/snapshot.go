package view

import (
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

type LayerSnapshot struct {
	ID       string                         `json:"id"`
	Graphics model.GeoJSONFeatureCollection `json:"graphics"`
}

type ViewpointSnapshot struct {
	SpatialReference model.SpatialReference `json:"spatialReference"`
	Center           model.Point            `json:"center"`
	Zoom             int                    `json:"zoom"`
	Target           *model.GeoJSONGeometry `json:"target,omitempty"`
}

type Snapshot struct {
	Viewpoint ViewpointSnapshot `json:"viewpoint"`
	Layers    []LayerSnapshot   `json:"layers"`
	Progress  Progress          `json:"progress"`
	Panels    Panels            `json:"panels"`
}

// Snapshot renders the view as JSON-friendly GeoJSON. Graphics whose geometry
// cannot be expressed in GeoJSON are skipped.
func (v *View) Snapshot() Snapshot {
	s := Snapshot{
		Viewpoint: ViewpointSnapshot{
			SpatialReference: v.cfg.SpatialReference,
			Center:           v.cfg.Center,
			Zoom:             v.cfg.Zoom,
		},
		Progress: v.Progress(),
		Panels:   v.Panels(),
	}
	if t, ok := v.Target(); ok {
		if g, err := t.Geometry.GeoJSON(); err == nil {
			s.Viewpoint.Target = &g
		}
	}
	for _, l := range v.Layers() {
		s.Layers = append(s.Layers, LayerSnapshot{ID: l.ID(), Graphics: toCollection(l.Graphics())})
	}
	return s
}

func toCollection(gs []Graphic) model.GeoJSONFeatureCollection {
	fc := model.GeoJSONFeatureCollection{Type: "FeatureCollection", Features: []model.GeoJSONFeature{}}
	for _, g := range gs {
		geom, err := g.Geometry.GeoJSON()
		if err != nil {
			continue
		}
		props := map[string]any{"symbol": g.Symbol}
		for k, v := range g.Attributes {
			props[k] = v
		}
		fc.Features = append(fc.Features, model.GeoJSONFeature{Type: "Feature", Geometry: geom, Properties: props})
	}
	return fc
}
