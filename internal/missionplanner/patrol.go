package missionplanner

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// DefaultPatrol is the survey pattern flown over the helipad grid.
var DefaultPatrol = []types.GridCoordinate{
	{Row: 2, Col: 3}, {Row: 5, Col: 4}, {Row: 8, Col: 3}, {Row: 9, Col: 1},
	{Row: 9, Col: 4}, {Row: 8, Col: 1}, {Row: 8, Col: 4}, {Row: 7, Col: 1},
	{Row: 7, Col: 4}, {Row: 6, Col: 1}, {Row: 6, Col: 4}, {Row: 5, Col: 1},
	{Row: 5, Col: 4}, {Row: 4, Col: 1},
}

// LoadPatrol looks for patrol-<device>.json, then patrol.json in dir. When
// neither exists the compiled-in pattern is used. A file that exists but
// cannot be parsed is an error.
func LoadPatrol(dir string, deviceID string) ([]types.GridCoordinate, error) {
	if dir == "" {
		return DefaultPatrol, nil
	}

	candidates := []string{filepath.Join(dir, "patrol.json")}
	if deviceID != "" {
		candidates = append([]string{filepath.Join(dir, fmt.Sprintf("patrol-%s.json", deviceID))}, candidates...)
	}

	for _, filename := range candidates {
		cells, err := loadPatrolFile(filename)
		if os.IsNotExist(errors.Cause(err)) {
			continue
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Could not load patrol file %s", filename)
		}
		log.Printf("Patrol: %d cells from %s", len(cells), filename)
		return cells, nil
	}

	log.Printf("Patrol: using built-in pattern (%d cells)", len(DefaultPatrol))
	return DefaultPatrol, nil
}

func loadPatrolFile(filename string) ([]types.GridCoordinate, error) {
	text, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cells []types.GridCoordinate
	err = json.Unmarshal(text, &cells)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		if c.Row < 0 || c.Col < 0 {
			return nil, errors.Errorf("negative cell %v", c)
		}
	}

	return cells, nil
}
