// Package missionplanner turns a patrol cell list into an ordered flight plan.
package missionplanner

import (
	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

var ErrEmptyPlan = errors.New("flight plan is empty: no patrol cell is present in the grid mapping")

// Lookup resolves a grid cell to its coordinate.
type Lookup interface {
	Lookup(cell types.GridCoordinate) (types.GeoPoint, bool)
}

// Build keeps the order of cells, repeats duplicates and silently drops cells
// that the registry does not know.
func Build(registry Lookup, cells []types.GridCoordinate, altitude float64) types.FlightPlan {
	plan := make(types.FlightPlan, 0, len(cells))
	for _, cell := range cells {
		p, found := registry.Lookup(cell)
		if !found {
			continue
		}
		plan = append(plan, types.Waypoint{
			Target: types.GeoPoint{Lat: p.Lat, Lon: p.Lon, Alt: altitude},
			Cell:   cell,
			Index:  len(plan),
		})
	}

	return plan
}

// BuildChecked is Build that treats an empty result as a configuration error.
func BuildChecked(registry Lookup, cells []types.GridCoordinate, altitude float64) (types.FlightPlan, error) {
	plan := Build(registry, cells, altitude)
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}

	return plan, nil
}
