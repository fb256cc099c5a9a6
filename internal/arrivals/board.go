package arrivals

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/transit"
)

// MapZoom frames the boarding points of a single stop.
const MapZoom = 18

// Card is one departure as shown on a stop's arrival board.
type Card struct {
	StopPointID    string    `json:"stopPointId"`
	StopPointName  string    `json:"stopPointName"`
	Headsign       string    `json:"headsign"`
	TripHeadsign   string    `json:"tripHeadsign"`
	RouteShortName string    `json:"routeShortName,omitempty"`
	RouteColor     string    `json:"routeColor"`
	RouteTextColor string    `json:"routeTextColor,omitempty"`
	Minutes        int       `json:"minutes"`
	Urgency        Urgency   `json:"urgency"`
	Clock          string    `json:"clock,omitempty"`
	Expected       time.Time `json:"expected"`
	DistanceMeters *int      `json:"distanceMeters,omitempty"`
	Proximity      string    `json:"proximity"`
	Vehicle        geo.Point `json:"vehicle"`
}

// Board is the rendered arrival board for a parent stop.
type Board struct {
	SnapshotID  uuid.UUID `json:"snapshotId"`
	StopID      string    `json:"stopId"`
	StopName    string    `json:"stopName"`
	Cards       []Card    `json:"cards"`
	IStop       bool      `json:"istop"`
	Message     string    `json:"message,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type BoardOptions struct {
	Location       *time.Location
	PreviewMinutes int
	Now            time.Time
}

// BuildBoard renders departures for stop in provider order.
func BuildBoard(stop transit.ParentStop, deps []transit.Departure, opts BoardOptions) Board {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	b := Board{
		SnapshotID:  uuid.New(),
		StopID:      stop.ID,
		StopName:    stop.Name,
		Cards:       make([]Card, 0, len(deps)),
		IStop:       IsIStop(deps),
		GeneratedAt: now,
	}
	for _, d := range deps {
		b.Cards = append(b.Cards, buildCard(stop, d, opts.Location))
	}
	if len(b.Cards) == 0 {
		b.Message = fmt.Sprintf("No departures in the next %d minutes", opts.PreviewMinutes)
	}
	return b
}

// IsIStop reports whether the stop is an information stop. The provider only
// flags this on departures, so it is read from the first one and unknown when
// nothing is scheduled.
func IsIStop(deps []transit.Departure) bool {
	return len(deps) != 0 && deps[0].IsIStop
}

func buildCard(stop transit.ParentStop, d transit.Departure, loc *time.Location) Card {
	c := Card{
		StopPointID:    d.StopID,
		Headsign:       d.Headsign,
		TripHeadsign:   d.TripHeadsign,
		RouteShortName: d.RouteShortName,
		RouteColor:     d.RouteColor,
		RouteTextColor: d.RouteTextColor,
		Minutes:        d.ExpectedMinutes,
		Urgency:        ClassifyUrgency(d.ExpectedMinutes),
		Clock:          ArrivalClock(d.Expected, d.ExpectedMinutes, loc),
		Expected:       d.Expected,
		Vehicle:        d.VehicleLocation,
		Proximity:      "-",
	}

	ref, name, ok := referencePoint(stop, d.StopID)
	c.StopPointName = name
	if ok {
		meters := int(math.Trunc(geo.Distance(d.VehicleLocation, ref)))
		c.DistanceMeters = &meters
		c.Proximity = FormatProximity(d.ExpectedMinutes, float64(meters))
	}
	return c
}

// referencePoint resolves the point a departure is measured against. Unknown
// point ids fall back to the middle of the parent stop.
func referencePoint(stop transit.ParentStop, pointID string) (geo.Point, string, bool) {
	if p, ok := stop.Point(pointID); ok {
		return p.Location, p.Name, true
	}
	center, err := geo.Centroid(stop.Locations())
	if err != nil {
		return geo.Point{}, stop.Name, false
	}
	return center, stop.Name, true
}

type Marker struct {
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
}

// MapView centers a map on a stop and marks each of its boarding points.
type MapView struct {
	Center  geo.Point `json:"center"`
	Zoom    int       `json:"zoom"`
	Markers []Marker  `json:"markers"`
}

func BuildMapView(stop transit.ParentStop) (MapView, error) {
	center, err := geo.Centroid(stop.Locations())
	if err != nil {
		return MapView{}, fmt.Errorf("map view for stop %s: %w", stop.ID, err)
	}
	mv := MapView{Center: center, Zoom: MapZoom, Markers: make([]Marker, 0, len(stop.Points))}
	for _, p := range stop.Points {
		mv.Markers = append(mv.Markers, Marker{Name: p.Name, Location: p.Location})
	}
	return mv, nil
}
