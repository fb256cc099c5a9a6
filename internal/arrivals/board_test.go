package arrivals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/transit"
)

func illiniUnion() transit.ParentStop {
	return transit.ParentStop{
		ID:   "IU",
		Name: "Illini Union",
		Points: []transit.StopPoint{
			{ID: "IU:1", Name: "Illini Union (North Side)", Location: geo.Point{Lat: 40.1100, Lon: -88.2272}},
			{ID: "IU:2", Name: "Illini Union (South Side)", Location: geo.Point{Lat: 40.1090, Lon: -88.2272}},
		},
	}
}

func TestBuildBoard(t *testing.T) {
	stop := illiniUnion()
	now := time.Date(2024, 3, 6, 22, 0, 0, 0, time.UTC)
	deps := []transit.Departure{
		{
			StopID:          "IU:1",
			Headsign:        "22N Illini",
			TripHeadsign:    "PAR",
			RouteColor:      "5a1d5a",
			Expected:        now,
			ExpectedMinutes: 0,
			VehicleLocation: stop.Points[0].Location,
			IsIStop:         true,
		},
		{
			StopID:          "IU:2",
			Headsign:        "5E Green Hopper",
			TripHeadsign:    "Meijer",
			RouteColor:      "2eb566",
			Expected:        now.Add(7 * time.Minute),
			ExpectedMinutes: 7,
			// ~0.0135 deg north of the south point, about 1.5km
			VehicleLocation: geo.Point{Lat: 40.1225, Lon: -88.2272},
		},
		{
			StopID:          "IU:2",
			Headsign:        "50E Green Hopper",
			Expected:        now.Add(20 * time.Minute),
			ExpectedMinutes: 20,
			VehicleLocation: geo.Point{Lat: 40.1225, Lon: -88.2272},
		},
	}

	b := BuildBoard(stop, deps, BoardOptions{Location: time.UTC, PreviewMinutes: 60, Now: now})
	assert.NotEqual(t, uuid.Nil, b.SnapshotID)
	assert.Equal(t, "IU", b.StopID)
	assert.Equal(t, "Illini Union", b.StopName)
	assert.True(t, b.IStop)
	assert.Empty(t, b.Message)
	assert.Equal(t, now, b.GeneratedAt)
	require.Len(t, b.Cards, 3)

	due := b.Cards[0]
	assert.Equal(t, "Illini Union (North Side)", due.StopPointName)
	assert.Equal(t, Urgency{"due!", ColorRed}, due.Urgency)
	assert.Equal(t, "", due.Clock)
	require.NotNil(t, due.DistanceMeters)
	assert.Equal(t, 0, *due.DistanceMeters)
	assert.Equal(t, "0m", due.Proximity)

	soon := b.Cards[1]
	assert.Equal(t, "Illini Union (South Side)", soon.StopPointName)
	assert.Equal(t, Urgency{"7 mins", ColorGreen}, soon.Urgency)
	assert.Equal(t, "22:07", soon.Clock)
	require.NotNil(t, soon.DistanceMeters)
	assert.InDelta(t, 1501, *soon.DistanceMeters, 2)
	assert.Contains(t, soon.Proximity, "km")

	later := b.Cards[2]
	assert.Equal(t, "-", later.Proximity)
	assert.Equal(t, ColorBlack, later.Urgency.Color)
}

func TestBuildBoardEmpty(t *testing.T) {
	b := BuildBoard(illiniUnion(), nil, BoardOptions{PreviewMinutes: 60})
	assert.Empty(t, b.Cards)
	assert.NotNil(t, b.Cards)
	assert.False(t, b.IStop)
	assert.Equal(t, "No departures in the next 60 minutes", b.Message)
	assert.False(t, b.GeneratedAt.IsZero())
}

func TestBuildBoardUnknownPointUsesCenter(t *testing.T) {
	stop := illiniUnion()
	center, err := geo.Centroid(stop.Locations())
	require.NoError(t, err)

	b := BuildBoard(stop, []transit.Departure{{
		StopID:          "IU:9",
		ExpectedMinutes: 3,
		VehicleLocation: center,
	}}, BoardOptions{})
	require.Len(t, b.Cards, 1)
	assert.Equal(t, "Illini Union", b.Cards[0].StopPointName)
	assert.Equal(t, "0m", b.Cards[0].Proximity)
}

func TestBuildBoardStopWithoutPoints(t *testing.T) {
	stop := transit.ParentStop{ID: "X", Name: "Nowhere"}
	b := BuildBoard(stop, []transit.Departure{{StopID: "X:1", ExpectedMinutes: 3}}, BoardOptions{})
	require.Len(t, b.Cards, 1)
	assert.Nil(t, b.Cards[0].DistanceMeters)
	assert.Equal(t, "-", b.Cards[0].Proximity)
}

func TestIsIStopFirstDepartureOnly(t *testing.T) {
	assert.False(t, IsIStop(nil))
	assert.False(t, IsIStop([]transit.Departure{{IsIStop: false}, {IsIStop: true}}))
	assert.True(t, IsIStop([]transit.Departure{{IsIStop: true}, {IsIStop: false}}))
}

func TestBuildMapView(t *testing.T) {
	mv, err := BuildMapView(illiniUnion())
	require.NoError(t, err)
	assert.Equal(t, MapZoom, mv.Zoom)
	assert.InDelta(t, 40.1095, mv.Center.Lat, 1e-9)
	assert.InDelta(t, -88.2272, mv.Center.Lon, 1e-9)
	require.Len(t, mv.Markers, 2)
	assert.Equal(t, "Illini Union (North Side)", mv.Markers[0].Name)

	_, err = BuildMapView(transit.ParentStop{ID: "empty"})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)
}

func TestBuildBoardLateVehicleIsDue(t *testing.T) {
	now := time.Date(2024, 3, 6, 22, 0, 0, 0, time.UTC)
	// expected time already passed; minutes are clamped to 0 upstream
	b := BuildBoard(illiniUnion(), []transit.Departure{{
		StopID:          "IU:1",
		Expected:        now.Add(-time.Minute),
		ExpectedMinutes: 0,
	}}, BoardOptions{Location: time.UTC, Now: now})
	require.Len(t, b.Cards, 1)
	assert.Equal(t, Urgency{"due!", ColorRed}, b.Cards[0].Urgency)
	assert.Empty(t, b.Cards[0].Clock)
}
