// Package gridmap loads the survey grid table that maps grid cells to
// geographic coordinates.
package gridmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// MalformedRowError describes a table row that could not be parsed into
// (row, col, lat, lon). Such rows are skipped.
type MalformedRowError struct {
	Line   int
	Fields []string
	Err    error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("line %d: malformed row %q: %v", e.Line, e.Fields, e.Err)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

type Registry struct {
	cells   map[types.GridCoordinate]types.GeoPoint
	skipped []*MalformedRowError
}

func New(cells map[types.GridCoordinate]types.GeoPoint) *Registry {
	r := &Registry{cells: make(map[types.GridCoordinate]types.GeoPoint, len(cells))}
	for k, v := range cells {
		r.cells[k] = types.GeoPoint{Lat: v.Lat, Lon: v.Lon}
	}
	return r
}

func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "Could not open grid mapping")
	}
	defer f.Close()

	return Load(f)
}

// Load reads a "row,col,lat,lon" table. The first record is a header and is
// ignored. Only read errors are returned; bad rows are logged and skipped.
func Load(r io.Reader) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	reg := &Registry{cells: make(map[types.GridCoordinate]types.GeoPoint)}
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				reg.skip(&MalformedRowError{Line: perr.StartLine, Fields: record, Err: perr.Err})
				header = false
				continue
			}
			return nil, errors.WithMessage(err, "Could not read grid mapping")
		}
		if header {
			header = false
			continue
		}

		line, _ := reader.FieldPos(0)
		cell, point, err := parseRow(record)
		if err != nil {
			reg.skip(&MalformedRowError{Line: line, Fields: record, Err: err})
			continue
		}
		if _, found := reg.cells[cell]; found {
			log.Printf("Grid mapping: duplicate cell %v on line %d, keeping the later row", cell, line)
		}
		reg.cells[cell] = point
	}

	return reg, nil
}

func parseRow(record []string) (types.GridCoordinate, types.GeoPoint, error) {
	if len(record) < 4 {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Errorf("expected 4 fields, got %d", len(record))
	}
	row, err := strconv.Atoi(strings.TrimSpace(record[0]))
	if err != nil {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Wrap(err, "row")
	}
	col, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Wrap(err, "col")
	}
	if row < 0 || col < 0 {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Errorf("negative cell (%d,%d)", row, col)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Wrap(err, "lat")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return types.GridCoordinate{}, types.GeoPoint{}, errors.Wrap(err, "lon")
	}

	return types.GridCoordinate{Row: row, Col: col}, types.GeoPoint{Lat: lat, Lon: lon}, nil
}

func (r *Registry) skip(e *MalformedRowError) {
	log.Printf("Skipping invalid row: %v", e)
	r.skipped = append(r.skipped, e)
}

func (r *Registry) Lookup(cell types.GridCoordinate) (types.GeoPoint, bool) {
	p, ok := r.cells[cell]
	return p, ok
}

func (r *Registry) Len() int {
	return len(r.cells)
}

// Skipped returns the rows rejected while loading.
func (r *Registry) Skipped() []*MalformedRowError {
	return r.skipped
}
