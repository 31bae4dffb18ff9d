package pnl

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"orb/logger"
	"orb/market"
)

// Entry is one day's realized result in the persisted log.
type Entry struct {
	Date      string    `json:"date"`
	PnlRatio  float64   `json:"pnl_ratio"` // realized PnL / position value
	Stats     Stats     `json:"stats"`
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyLog is the JSON file of per-day results, keyed by date. Computing a
// day's numbers twice is wasteful and, with a paginated activity feed,
// possibly inconsistent, so an existing entry for today is returned as-is.
type DailyLog struct {
	path  string
	clock market.Clock
	log   *logger.Logger
}

func NewDailyLog(path string, clock market.Clock, log *logger.Logger) *DailyLog {
	return &DailyLog{path: path, clock: clock, log: log}
}

func (d *DailyLog) load() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pnl log: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse pnl log: %w", err)
	}
	return entries, nil
}

func (d *DailyLog) save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pnl log: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("write pnl log: %w", err)
	}
	return nil
}

// Today returns today's entry, computing and persisting it via compute
// only when the log has no entry for today yet. The second return reports
// whether the entry came from the cache.
func (d *DailyLog) Today(compute func() (Entry, error)) (Entry, bool, error) {
	entries, err := d.load()
	if err != nil {
		return Entry{}, false, err
	}

	key := d.clock.Now().Format("2006-01-02")
	if entry, ok := entries[key]; ok {
		return entry, true, nil
	}

	entry, err := compute()
	if err != nil {
		return Entry{}, false, err
	}
	entry.Date = key
	entry.CreatedAt = d.clock.Now()

	entries[key] = entry
	if err := d.save(entries); err != nil {
		return Entry{}, false, err
	}
	d.log.WithComponent("pnl").WithFields(map[string]any{
		"date":      key,
		"pnl_ratio": entry.PnlRatio,
		"trades":    entry.Stats.Trades,
	}).Info("daily pnl recorded")
	return entry, false, nil
}

// History returns all persisted entries keyed by date.
func (d *DailyLog) History() (map[string]Entry, error) {
	return d.load()
}
