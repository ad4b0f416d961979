package geo

import (
	"math"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

const earthRadiusMetres float64 = 6371000

// Distance returns the great-circle distance in metres between a and b.
// Altitude is ignored.
func Distance(a, b types.GeoPoint) float64 {
	return distance(a.Lon, a.Lat, b.Lon, b.Lat)
}

// DeltaXY converts the difference between two coordinates into east (x) and
// north (y) offsets in metres.
func DeltaXY(from, to types.GeoPoint) (float64, float64) {
	dlon := to.Lon - from.Lon
	dlat := to.Lat - from.Lat
	dx := distance(from.Lon, from.Lat, to.Lon, from.Lat)
	dy := distance(from.Lon, from.Lat, from.Lon, to.Lat)

	return math.Copysign(dx, dlon), math.Copysign(dy, dlat)
}

// Offset moves p by dx metres east and dy metres north. Good enough for the
// few hundred metres a survey grid spans.
func Offset(p types.GeoPoint, dx, dy float64) types.GeoPoint {
	dLat := dy / earthRadiusMetres * (180 / math.Pi)
	dLon := dx / (earthRadiusMetres * math.Cos(p.Lat*math.Pi/180)) * (180 / math.Pi)
	return types.GeoPoint{Lat: p.Lat + dLat, Lon: p.Lon + dLon, Alt: p.Alt}
}

func distance(lonFrom float64, latFrom float64, lonTo float64, latTo float64) float64 {
	if lonFrom == lonTo && latFrom == latTo {
		return 0
	}

	var deltaLat = (latTo - latFrom) * (math.Pi / 180)
	var deltaLon = (lonTo - lonFrom) * (math.Pi / 180)

	var a = math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(latFrom*(math.Pi/180))*math.Cos(latTo*(math.Pi/180))*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	// rounding can push a a hair outside [0, 1] near antipodes
	a = math.Max(0, math.Min(1, a))
	var c = 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMetres * c
}
