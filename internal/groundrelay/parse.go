// Package groundrelay forwards the reports received by the ground radio to
// the survey web app.
package groundrelay

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Report is one line received from the vehicle. Lines carry either
// row,col,count or row,col,survivors,flood,damage.
type Report struct {
	Row            int
	Col            int
	Survivors      int
	Flood          int
	BuildingDamage int
}

func Parse(line string) (Report, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 && len(fields) != 5 {
		return Report{}, errors.Errorf("expected 3 or 5 values, got %d", len(fields))
	}

	values := make([]int, 5)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Report{}, errors.WithMessagef(err, "value %d", i+1)
		}
		if v < 0 {
			return Report{}, errors.Errorf("value %d is negative", i+1)
		}
		values[i] = v
	}

	return Report{values[0], values[1], values[2], values[3], values[4]}, nil
}
