package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		stopID string
		want   string
	}{
		{"IU", "arrivals.IU"},
		{"IU:1", "arrivals.IU_1"},
		{" GRN WRT ", "arrivals.GRN_WRT"},
		{"a.b*c>d", "arrivals.a_b_c_d"},
		{"", "arrivals._"},
	}
	for _, tt := range tests {
		t.Run(tt.stopID, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject("arrivals", tt.stopID))
		})
	}
}
