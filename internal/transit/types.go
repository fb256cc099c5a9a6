package transit

import (
	"time"

	"mtd-arrivals/internal/geo"
)

// StopPoint is one physical boarding location of a parent stop.
type StopPoint struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
}

// ParentStop groups the boarding points that share one named location,
// e.g. both sides of a street.
type ParentStop struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Points []StopPoint `json:"points"`
}

// Point returns the stop point with the given id.
func (s ParentStop) Point(id string) (StopPoint, bool) {
	for _, p := range s.Points {
		if p.ID == id {
			return p, true
		}
	}
	return StopPoint{}, false
}

// Locations returns point locations in provider order.
func (s ParentStop) Locations() []geo.Point {
	out := make([]geo.Point, 0, len(s.Points))
	for _, p := range s.Points {
		out = append(out, p.Location)
	}
	return out
}

// Departure is one predicted arrival of a vehicle at a stop point.
type Departure struct {
	StopID          string    `json:"stopId"`
	Headsign        string    `json:"headsign"`
	TripHeadsign    string    `json:"tripHeadsign"`
	RouteID         string    `json:"routeId"`
	RouteShortName  string    `json:"routeShortName"`
	RouteColor      string    `json:"routeColor"` // hex without '#'
	RouteTextColor  string    `json:"routeTextColor"`
	VehicleID       string    `json:"vehicleId"`
	Expected        time.Time `json:"expected"`
	ExpectedMinutes int       `json:"expectedMinutes"`
	VehicleLocation geo.Point `json:"vehicleLocation"`
	IsIStop         bool      `json:"isIStop"`
}

type NearbyStop struct {
	ParentStop
	DistanceFeet float64 `json:"distanceFeet"`
}
