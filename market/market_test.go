package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTick(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"already on tick", 97.00, 97.00},
		{"round down", 106.004, 106.00},
		{"round up", 106.005, 106.01},
		{"sub-cent entry", 100.599999, 100.60},
		{"stop from rate", 100.00 * (1 - 0.03), 97.00},
		{"target from rate", 100.00 * (1 + 0.06), 106.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundTick(tt.in), 1e-9)
		})
	}
}

func TestSimClockAdvancesWithoutBlocking(t *testing.T) {
	start := time.Date(2023, 12, 6, 9, 30, 1, 0, time.UTC)
	clk := NewSimClock(start)

	before := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, clk.Sleep(context.Background(), time.Minute))
	}
	assert.Less(t, time.Since(before), time.Second)
	assert.Equal(t, start.Add(100*time.Minute), clk.Now())
}

func TestSimClockSleepHonorsCancel(t *testing.T) {
	clk := NewSimClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, clk.Sleep(ctx, time.Minute))
}

func TestOpeningRangeValid(t *testing.T) {
	assert.True(t, OpeningRange{High: 100, Low: 95}.Valid())
	assert.False(t, OpeningRange{High: 0, Low: 0}.Valid())
	assert.False(t, OpeningRange{High: 95, Low: 100}.Valid())
}
