package services_test

import (
	"testing"

	"ludo-arena-backend/internal/services"
)

func TestLevelForEarnings(t *testing.T) {
	cases := []struct {
		earnings int64
		want     int
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{4999, 2},
		{5000, 3},
		{15000, 4},
		{30000, 5},
		{50000, 6},
		{74999, 6},
		{75000, 7}, // thresholds continue every 25000 past the table
		{100000, 8},
	}
	for _, c := range cases {
		if got := services.LevelForEarnings(c.earnings); got != c.want {
			t.Errorf("LevelForEarnings(%d) = %d, want %d", c.earnings, got, c.want)
		}
	}

	if got := services.LevelForEarnings(1 << 40); got != 50 {
		t.Errorf("level should cap at 50, got %d", got)
	}
	if got := services.LevelForEarnings(-100); got != 1 {
		t.Errorf("negative earnings should floor at level 1, got %d", got)
	}
}
