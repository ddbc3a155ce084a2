// Package mapper converts job geometries to H3 cells for event keys.
package mapper

import (
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
)

type Interface interface {
	CellForPoint(pt model.Point, res int) (string, error)
	CellsForRings(rings [][][]float64, sr model.SpatialReference, res int) ([]string, error)
}
