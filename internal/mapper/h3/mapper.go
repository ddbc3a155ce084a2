package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

// ErrUnsupportedSR is returned for coordinates that are not WGS84 degrees.
var ErrUnsupportedSR = errors.New("h3 mapping needs WGS84 (EPSG:4326) coordinates")

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellForPoint(pt model.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if err := validateSR(pt.SpatialReference); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: pt.Y, Lng: pt.X}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForRings polyfills an Esri polygon. Each clockwise ring starts a new
// polygon; counter-clockwise rings are holes of the preceding one.
func (m *Mapper) CellsForRings(rings [][][]float64, sr model.SpatialReference, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if err := validateSR(sr); err != nil {
		return nil, err
	}
	geom, err := model.Geometry{Rings: rings}.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("rings: %w", err)
	}

	var polys [][][][]float64
	switch c := geom.Coordinates.(type) {
	case [][][]float64:
		polys = [][][][]float64{c}
	case [][][][]float64:
		polys = c
	default:
		return nil, fmt.Errorf("unexpected geometry %s", geom.Type)
	}

	seen := make(map[string]struct{})
	var out []string
	for pi, polyRings := range polys {
		outer := toLoop(polyRings[0])
		if len(outer) < 3 {
			return nil, fmt.Errorf("polygon %d outer ring has < 3 distinct vertices", pi)
		}
		var holes []h3.GeoLoop
		for i := 1; i < len(polyRings); i++ {
			holes = append(holes, toLoop(polyRings[i]))
		}
		cells, err := polyfillOne(outer, holes, res)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func validateSR(sr model.SpatialReference) error {
	if id := sr.ID(); id != model.WKIDWGS84 {
		return fmt.Errorf("%w: got wkid %d", ErrUnsupportedSR, id)
	}
	return nil
}

// Convert a ring [[lon,lat], ...] to an h3.GeoLoop (in degrees).
// If the ring is explicitly closed (last == first), drop the trailing duplicate.
func toLoop(coords [][]float64) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		if len(xy) < 2 {
			continue
		}
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

// polyfillOne computes unique cells and returns them sorted for determinism.
func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, error) {
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Neighborhood returns the centers of the cells within k steps of the cell
// containing pt, the containing cell first
func (m *Mapper) Neighborhood(pt model.Point, res, k int) ([]model.Point, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if err := validateSR(pt.SpatialReference); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("k must be >= 0, got %d", k)
	}
	origin, err := h3.LatLngToCell(h3.LatLng{Lat: pt.Y, Lng: pt.X}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 cell: %w", err)
	}
	cells, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk: %w", err)
	}

	out := make([]model.Point, 0, len(cells))
	for _, c := range cells {
		ll, err := h3.CellToLatLng(c)
		if err != nil {
			return nil, fmt.Errorf("h3 cell center: %w", err)
		}
		p := model.Point{X: ll.Lng, Y: ll.Lat, SpatialReference: pt.SpatialReference}
		if c == origin {
			out = append([]model.Point{p}, out...)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
