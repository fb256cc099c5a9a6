// Package arrivals turns provider arrival records into display values: urgency
// labels and colors, proximity strings, arrival clocks and whole arrival boards.
package arrivals

import (
	"math"
	"strconv"
	"time"

	"mtd-arrivals/internal/geo"
)

const (
	// Beyond this horizon the vehicle position says little about when it arrives.
	proximityHorizonMinutes = 15

	ColorRed    = "#fe0000"
	ColorOrange = "#fe8800"
	ColorGreen  = "#008800"
	ColorBlack  = "#000000"
)

// Urgency is the label and text color shown for an arrival.
type Urgency struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ClassifyUrgency labels an arrival by minutes until it is expected.
func ClassifyUrgency(minutes int) Urgency {
	return Urgency{Label: urgencyLabel(minutes), Color: urgencyColor(minutes)}
}

func urgencyLabel(minutes int) string {
	switch minutes {
	case 0:
		return "due!"
	case 1:
		return "1 min!"
	default:
		return strconv.Itoa(minutes) + " mins"
	}
}

func urgencyColor(minutes int) string {
	switch {
	case minutes <= 2:
		return ColorRed
	case minutes <= 5:
		return ColorOrange
	case minutes <= 10:
		return ColorGreen
	default:
		return ColorBlack
	}
}

// FormatProximity renders how far away a vehicle is. Distances of a kilometer
// or more are printed unrounded in km, shorter ones as whole meters.
func FormatProximity(minutes int, meters float64) string {
	if minutes >= proximityHorizonMinutes {
		return "-"
	}
	if meters >= 1000 {
		return formatKilometers(meters)
	}
	return strconv.Itoa(int(meters)) + "m"
}

// NearbyDistance renders a provider distance given in feet as rounded meters.
func NearbyDistance(feet float64) string {
	m := math.Round(geo.FeetToMeters(feet))
	if m >= 1000 {
		return formatKilometers(m)
	}
	return strconv.Itoa(int(m)) + "m"
}

func formatKilometers(meters float64) string {
	return strconv.FormatFloat(meters/1000, 'f', -1, 64) + "km"
}

// ArrivalClock returns the HH:MM wall-clock time of an arrival in loc, or an
// empty string when the vehicle is due.
func ArrivalClock(expected time.Time, minutes int, loc *time.Location) string {
	if minutes == 0 || expected.IsZero() {
		return ""
	}
	if loc != nil {
		expected = expected.In(loc)
	}
	return expected.Format("15:04")
}
