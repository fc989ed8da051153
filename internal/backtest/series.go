package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoadCSV reads time,open,high,low,close[,volume] rows. A header row whose
// first cell is "time" is skipped, as are blank rows. Times may be RFC3339,
// a date (2006-01-02) or unix seconds.
func LoadCSV(r io.Reader, symbol string) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	series := Series{Symbol: strings.ToUpper(symbol)}
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		bar, err := parseBarRow(row)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		series.Bars = append(series.Bars, bar)
	}
	return series, nil
}

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 5 {
		return Bar{}, fmt.Errorf("want at least 5 columns, got %d", len(row))
	}
	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return Bar{}, err
	}
	vals := make([]decimal.Decimal, 5)
	cols := []string{"open", "high", "low", "close", "volume"}
	for i := range vals {
		if i == 4 && len(row) < 6 {
			break
		}
		v, err := decimal.NewFromString(strings.TrimSpace(row[i+1]))
		if err != nil {
			return Bar{}, fmt.Errorf("bad %s %q", cols[i], row[i+1])
		}
		vals[i] = v
	}
	return Bar{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
