package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by Distance.
	EarthRadiusMeters = 6371000.0

	metersPerFoot = 0.3048
)

// ErrInvalidInput is returned when a computation receives input outside its domain.
var ErrInvalidInput = errors.New("invalid input")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// Distance returns the great-circle distance between a and b in meters (haversine).
func Distance(a, b Point) float64 {
	phi1 := toRad(a.Lat)
	phi2 := toRad(b.Lat)
	dPhi := toRad(b.Lat - a.Lat)
	dLambda := toRad(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push h marginally past 1 for near-antipodal points
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Centroid averages latitudes and longitudes independently. This is a planar
// approximation that only holds for tightly clustered points such as the
// boarding points of a single stop.
func Centroid(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, fmt.Errorf("centroid of empty point set: %w", ErrInvalidInput)
	}
	var sum Point
	for _, p := range points {
		sum.Lat += p.Lat
		sum.Lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: sum.Lat / n, Lon: sum.Lon / n}, nil
}

// FeetToMeters converts a length in feet to meters.
func FeetToMeters(feet float64) float64 {
	return feet * metersPerFoot
}
