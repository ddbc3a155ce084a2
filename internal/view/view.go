// Package view models the map surface the orchestrator draws on: two
// graphics layers, the view target, a progress indicator and the two
// mutually exclusive auth panels.
package view

import (
	"sync"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

const ProgressText = "computing..."

type Outline struct {
	Color []float64 `json:"color"`
	Width float64   `json:"width"`
}

type Symbol struct {
	Type    string    `json:"type"`
	Style   string    `json:"style,omitempty"`
	Color   []float64 `json:"color"`
	Size    string    `json:"size,omitempty"`
	Outline *Outline  `json:"outline,omitempty"`
}

// PointSymbol marks both the requested point and the snapped points
func PointSymbol() Symbol {
	return Symbol{
		Type:    "simple-marker",
		Style:   "circle",
		Color:   []float64{59, 148, 0, 1},
		Size:    "10px",
		Outline: &Outline{Color: []float64{255, 255, 0}, Width: 2},
	}
}

func PolygonSymbol() Symbol {
	return Symbol{
		Type:    "simple-fill",
		Color:   []float64{22, 22, 205, 0.5},
		Outline: &Outline{Color: []float64{255, 255, 0, 0.5}, Width: 2},
	}
}

type Graphic struct {
	Geometry   model.Geometry
	Symbol     Symbol
	Attributes map[string]any
}

type Progress struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

type Panels struct {
	Anonymous    bool `json:"anonymousPanel"`
	Personalized bool `json:"personalizedPanel"`
}

type Config struct {
	SpatialReference model.SpatialReference
	Center           model.Point
	Zoom             int
}

type View struct {
	mu       sync.RWMutex
	cfg      Config
	target   *Graphic
	progress Progress
	panels   Panels

	// FocusPoints holds the requested point, later replaced by snapped points
	FocusPoints *GraphicsLayer
	Watersheds  *GraphicsLayer
}

func New(cfg Config) *View {
	if cfg.Center.SpatialReference == (model.SpatialReference{}) {
		cfg.Center.SpatialReference = cfg.SpatialReference
	}
	return &View{
		cfg:         cfg,
		panels:      Panels{Anonymous: true},
		FocusPoints: NewLayer("focusPoints"),
		Watersheds:  NewLayer("watersheds"),
	}
}

func (v *View) SpatialReference() model.SpatialReference { return v.cfg.SpatialReference }

// Layers returns the layers in draw order
func (v *View) Layers() []*GraphicsLayer {
	return []*GraphicsLayer{v.FocusPoints, v.Watersheds}
}

func (v *View) ShowProgress(show bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if show {
		v.progress.Text = ProgressText
	}
	v.progress.Visible = show
}

func (v *View) Progress() Progress {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.progress
}

// ShowFocusPoint clears any prior marker and places one at pt
func (v *View) ShowFocusPoint(pt model.Point) Graphic {
	g := Graphic{Geometry: pt.Geometry(), Symbol: PointSymbol()}
	v.FocusPoints.Replace(g)
	return g
}

func (v *View) GoTo(g Graphic) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := g
	v.target = &cp
}

func (v *View) Target() (Graphic, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.target == nil {
		return Graphic{}, false
	}
	return *v.target, true
}

func (v *View) SetPanels(p Panels) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panels = p
}

func (v *View) Panels() Panels {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.panels
}

// Reset returns the view to its freshly loaded state
func (v *View) Reset() {
	v.FocusPoints.RemoveAll()
	v.Watersheds.RemoveAll()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.target = nil
	v.progress = Progress{}
	v.panels = Panels{Anonymous: true}
}
