package mtd

import (
	"time"

	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/transit"
)

type stopsResponse struct {
	Stops []apiStop `json:"stops"`
}

type apiStop struct {
	StopID     string         `json:"stop_id"`
	StopName   string         `json:"stop_name"`
	Code       string         `json:"code"`
	Distance   float64        `json:"distance"` // feet, getstopsbylatlon only
	StopPoints []apiStopPoint `json:"stop_points"`
}

type apiStopPoint struct {
	StopID   string  `json:"stop_id"`
	StopName string  `json:"stop_name"`
	Code     string  `json:"code"`
	StopLat  float64 `json:"stop_lat"`
	StopLon  float64 `json:"stop_lon"`
}

func (s apiStop) toParentStop() transit.ParentStop {
	ps := transit.ParentStop{
		ID:     s.StopID,
		Name:   s.StopName,
		Points: make([]transit.StopPoint, 0, len(s.StopPoints)),
	}
	for _, p := range s.StopPoints {
		ps.Points = append(ps.Points, transit.StopPoint{
			ID:       p.StopID,
			Name:     p.StopName,
			Location: geo.Point{Lat: p.StopLat, Lon: p.StopLon},
		})
	}
	return ps
}

type departuresResponse struct {
	Departures []apiDeparture `json:"departures"`
}

type apiDeparture struct {
	StopID       string    `json:"stop_id"`
	Headsign     string    `json:"headsign"`
	VehicleID    string    `json:"vehicle_id"`
	IsIStop      bool      `json:"is_istop"`
	Expected     time.Time `json:"expected"`
	ExpectedMins int       `json:"expected_mins"`
	Route        struct {
		RouteID        string `json:"route_id"`
		RouteShortName string `json:"route_short_name"`
		RouteColor     string `json:"route_color"`
		RouteTextColor string `json:"route_text_color"`
	} `json:"route"`
	Trip struct {
		TripHeadsign string `json:"trip_headsign"`
	} `json:"trip"`
	Location struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"location"`
}

func (d apiDeparture) toDeparture() transit.Departure {
	mins := d.ExpectedMins
	if mins < 0 {
		mins = 0
	}
	return transit.Departure{
		StopID:          d.StopID,
		Headsign:        d.Headsign,
		TripHeadsign:    d.Trip.TripHeadsign,
		RouteID:         d.Route.RouteID,
		RouteShortName:  d.Route.RouteShortName,
		RouteColor:      d.Route.RouteColor,
		RouteTextColor:  d.Route.RouteTextColor,
		VehicleID:       d.VehicleID,
		Expected:        d.Expected,
		ExpectedMinutes: mins,
		VehicleLocation: geo.Point{Lat: d.Location.Lat, Lon: d.Location.Lon},
		IsIStop:         d.IsIStop,
	}
}
