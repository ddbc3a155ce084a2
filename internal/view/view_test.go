package view

import (
	"encoding/json"
	"testing"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

var wgs84 = model.SpatialReference{WKID: model.WKIDWGS84}

func newView() *View {
	return New(Config{
		SpatialReference: wgs84,
		Center:           model.Point{X: -116.5403131, Y: 33.8258166},
		Zoom:             10,
	})
}

func TestShowFocusPoint_ReplacesPriorMarker(t *testing.T) {
	v := newView()
	v.ShowFocusPoint(model.Point{X: 1, Y: 2, SpatialReference: wgs84})
	g := v.ShowFocusPoint(model.Point{X: -116.54, Y: 33.83, SpatialReference: wgs84})

	gs := v.FocusPoints.Graphics()
	if len(gs) != 1 {
		t.Fatalf("markers=%d want 1", len(gs))
	}
	p, ok := gs[0].Geometry.AsPoint()
	if !ok || p.X != -116.54 || p.Y != 33.83 {
		t.Fatalf("marker at %+v", p)
	}
	if g.Symbol.Type != "simple-marker" {
		t.Fatalf("symbol=%q", g.Symbol.Type)
	}
}

func TestProgress_Toggle(t *testing.T) {
	v := newView()
	if v.Progress().Visible {
		t.Fatal("progress visible on a fresh view")
	}
	v.ShowProgress(true)
	if p := v.Progress(); !p.Visible || p.Text != ProgressText {
		t.Fatalf("progress=%+v", p)
	}
	v.ShowProgress(false)
	if v.Progress().Visible {
		t.Fatal("progress still visible")
	}
}

func TestLayer_ReplaceAndCopies(t *testing.T) {
	l := NewLayer("x")
	l.Add(Graphic{}, Graphic{})
	got := l.Graphics()
	got[0].Symbol.Type = "mutated"
	if l.Graphics()[0].Symbol.Type == "mutated" {
		t.Fatal("Graphics must return a copy")
	}
	l.Replace(Graphic{Symbol: Symbol{Type: "a"}})
	if l.Len() != 1 {
		t.Fatalf("len=%d want 1", l.Len())
	}
	l.Replace()
	if l.Len() != 0 {
		t.Fatalf("len=%d want 0", l.Len())
	}
}

func TestReset(t *testing.T) {
	v := newView()
	v.ShowFocusPoint(model.Point{X: 1, Y: 1})
	v.Watersheds.Add(Graphic{})
	v.GoTo(Graphic{})
	v.ShowProgress(true)
	v.SetPanels(Panels{Personalized: true})

	v.Reset()
	if v.FocusPoints.Len() != 0 || v.Watersheds.Len() != 0 {
		t.Fatal("layers not cleared")
	}
	if _, ok := v.Target(); ok {
		t.Fatal("target not cleared")
	}
	if p := v.Panels(); !p.Anonymous || p.Personalized {
		t.Fatalf("panels=%+v", p)
	}
	if v.Progress().Visible {
		t.Fatal("progress not hidden")
	}
}

func TestSnapshot_JSON(t *testing.T) {
	v := newView()
	v.ShowFocusPoint(model.Point{X: -116.54, Y: 33.83, SpatialReference: wgs84})
	ring := [][]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	v.Watersheds.Add(Graphic{Geometry: model.Geometry{Rings: [][][]float64{ring}}, Symbol: PolygonSymbol()})
	x, y := -116.539, 33.831
	v.GoTo(Graphic{Geometry: model.Geometry{X: &x, Y: &y}})

	b, err := json.Marshal(v.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out struct {
		Viewpoint struct {
			Zoom   int `json:"zoom"`
			Target struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"target"`
		} `json:"viewpoint"`
		Layers []struct {
			ID       string `json:"id"`
			Graphics struct {
				Features []struct {
					Geometry struct {
						Type string `json:"type"`
					} `json:"geometry"`
					Properties map[string]any `json:"properties"`
				} `json:"features"`
			} `json:"graphics"`
		} `json:"layers"`
		Panels Panels `json:"panels"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Viewpoint.Zoom != 10 || out.Viewpoint.Target.Type != "Point" || out.Viewpoint.Target.Coordinates[0] != x {
		t.Fatalf("viewpoint=%+v", out.Viewpoint)
	}
	if len(out.Layers) != 2 || out.Layers[0].ID != "focusPoints" || out.Layers[1].ID != "watersheds" {
		t.Fatalf("layers=%+v", out.Layers)
	}
	if out.Layers[1].Graphics.Features[0].Geometry.Type != "Polygon" {
		t.Fatalf("watershed geometry=%+v", out.Layers[1].Graphics.Features[0].Geometry)
	}
	if _, ok := out.Layers[0].Graphics.Features[0].Properties["symbol"]; !ok {
		t.Fatal("symbol missing from properties")
	}
	if !out.Panels.Anonymous {
		t.Fatal("anonymous panel should be visible initially")
	}
}
