package pnl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/logger"
	"orb/market"
)

func TestDailyLog_ComputesOncePerDay(t *testing.T) {
	clk := market.NewSimClock(time.Date(2026, 3, 2, 21, 5, 0, 0, time.UTC))
	log := NewDailyLog(filepath.Join(t.TempDir(), "pnl.json"), clk, logger.Discard())

	computes := 0
	compute := func() (Entry, error) {
		computes++
		return Entry{PnlRatio: 0.0123, Stats: Stats{Trades: 3, Wins: 2}}, nil
	}

	entry, cached, err := log.Today(compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "2026-03-02", entry.Date)
	assert.Equal(t, 0.0123, entry.PnlRatio)

	// same day again: cached, compute not called
	entry, cached, err = log.Today(compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, computes)

	// next day computes fresh
	clk.Advance(24 * time.Hour)
	entry, cached, err = log.Today(compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "2026-03-03", entry.Date)
	assert.Equal(t, 2, computes)

	history, err := log.History()
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDailyLog_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pnl.json")
	clk := market.NewSimClock(time.Date(2026, 3, 2, 21, 5, 0, 0, time.UTC))

	first := NewDailyLog(path, clk, logger.Discard())
	_, _, err := first.Today(func() (Entry, error) {
		return Entry{PnlRatio: -0.004, Stats: Stats{Trades: 1, Losses: 1}}, nil
	})
	require.NoError(t, err)

	second := NewDailyLog(path, clk, logger.Discard())
	entry, cached, err := second.Today(func() (Entry, error) {
		t.Fatal("compute must not run for a persisted day")
		return Entry{}, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, -0.004, entry.PnlRatio)
	assert.Equal(t, 1, entry.Stats.Losses)
}

func TestDailyLog_ComputeErrorNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pnl.json")
	clk := market.NewSimClock(time.Date(2026, 3, 2, 21, 5, 0, 0, time.UTC))
	log := NewDailyLog(path, clk, logger.Discard())

	_, _, err := log.Today(func() (Entry, error) {
		return Entry{}, errors.New("activity feed down")
	})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
