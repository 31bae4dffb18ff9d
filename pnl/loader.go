package pnl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"orb/broker"
)

// FetchFills pulls the fill history for the window from the broker's
// activity feed, for live daily reporting.
func FetchFills(ctx context.Context, b broker.Broker, window Window) ([]broker.Fill, error) {
	fills, err := b.ListFills(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("fetch fills: %w", err)
	}
	return fills, nil
}

// csv column layout of a brokerage fill export
const (
	colOrderID = iota
	colSymbol
	colSide
	colQty
	colPrice
	colTime
	csvColumns
)

// ReadCSV loads fills from an exported CSV (header row optional), for
// offline analysis when no API session is available.
func ReadCSV(path string) ([]broker.Fill, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fills csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = csvColumns

	var fills []broker.Fill
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fills csv: %w", err)
		}
		line++

		if line == 1 && strings.EqualFold(record[colQty], "qty") {
			continue // header
		}

		fill, err := parseFillRecord(record)
		if err != nil {
			return nil, fmt.Errorf("fills csv line %d: %w", line, err)
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

func parseFillRecord(record []string) (broker.Fill, error) {
	qty, err := strconv.ParseInt(strings.TrimSpace(record[colQty]), 10, 64)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("qty %q: %w", record[colQty], err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(record[colPrice]), 64)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("price %q: %w", record[colPrice], err)
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[colTime]))
	if err != nil {
		return broker.Fill{}, fmt.Errorf("time %q: %w", record[colTime], err)
	}

	side := broker.Side(strings.ToLower(strings.TrimSpace(record[colSide])))
	if side != broker.Buy && side != broker.Sell {
		return broker.Fill{}, fmt.Errorf("side %q: must be buy or sell", record[colSide])
	}

	return broker.Fill{
		OrderID: strings.TrimSpace(record[colOrderID]),
		Symbol:  strings.TrimSpace(record[colSymbol]),
		Side:    side,
		Qty:     qty,
		Price:   price,
		Time:    ts,
	}, nil
}
