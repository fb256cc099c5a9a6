package arrivals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatProximity(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		meters  float64
		want    string
	}{
		{"long horizon hides distance", 20, 500, "-"},
		{"horizon boundary", 15, 10, "-"},
		{"just under horizon", 14, 10, "10m"},
		{"kilometers unrounded", 5, 1500, "1.5km"},
		{"exactly one kilometer", 5, 1000, "1km"},
		{"kilometers keep decimals", 3, 1234, "1.234km"},
		{"meters", 5, 999, "999m"},
		{"meters truncated", 5, 999.99, "999m"},
		{"zero", 0, 0, "0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProximity(tt.minutes, tt.meters))
		})
	}
}

func TestClassifyUrgency(t *testing.T) {
	tests := []struct {
		minutes int
		want    Urgency
	}{
		{0, Urgency{"due!", ColorRed}},
		{1, Urgency{"1 min!", ColorRed}},
		{2, Urgency{"2 mins", ColorRed}},
		{3, Urgency{"3 mins", ColorOrange}},
		{5, Urgency{"5 mins", ColorOrange}},
		{6, Urgency{"6 mins", ColorGreen}},
		{10, Urgency{"10 mins", ColorGreen}},
		{11, Urgency{"11 mins", ColorBlack}},
		{59, Urgency{"59 mins", ColorBlack}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyUrgency(tt.minutes), "minutes=%d", tt.minutes)
	}
	assert.Equal(t, "#fe0000", ClassifyUrgency(0).Color)
	assert.Equal(t, "#000000", ClassifyUrgency(11).Color)
}

func TestNearbyDistance(t *testing.T) {
	assert.Equal(t, "305m", NearbyDistance(1000))
	assert.Equal(t, "0m", NearbyDistance(0))
	// 3281 ft = 1000.0488 m, rounds to 1000
	assert.Equal(t, "1km", NearbyDistance(3281))
	// 5000 ft = 1524 m
	assert.Equal(t, "1.524km", NearbyDistance(5000))
}

func TestArrivalClock(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	expected := time.Date(2024, 3, 6, 22, 5, 0, 0, time.UTC) // 16:05 CST

	assert.Equal(t, "", ArrivalClock(expected, 0, loc))
	assert.Equal(t, "16:05", ArrivalClock(expected, 7, loc))
	assert.Equal(t, "22:05", ArrivalClock(expected, 7, nil))
	assert.Equal(t, "", ArrivalClock(time.Time{}, 7, loc))

	early := time.Date(2024, 3, 6, 7, 3, 0, 0, loc)
	assert.Equal(t, "07:03", ArrivalClock(early, 4, loc))
}
