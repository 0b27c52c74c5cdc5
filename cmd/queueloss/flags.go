package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"queueloss/internal/ledger"
)

// Output formats.
const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatCSV      = "csv"
)

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}

// parseRange resolves --day or --from/--to. Empty input means yesterday (UTC).
func parseRange(day, from, to string, now time.Time) (time.Time, time.Time, error) {
	if day != "" {
		d, err := parseDay(day)
		return d, d, err
	}
	yesterday := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	start, end := yesterday, yesterday
	var err error
	if from != "" {
		if start, err = parseDay(from); err != nil {
			return start, end, err
		}
		end = start
	}
	if to != "" {
		if end, err = parseDay(to); err != nil {
			return start, end, err
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("--to %s is before --from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

// parsePeriod parses "YYYY-MM-DD:YYYY-MM-DD" (inclusive days).
func parsePeriod(s string) (ledger.Period, error) {
	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		endStr = startStr
	}
	start, err := parseDay(startStr)
	if err != nil {
		return ledger.Period{}, err
	}
	end, err := parseDay(endStr)
	if err != nil {
		return ledger.Period{}, err
	}
	return ledger.NewPeriod(start, end)
}

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(allowed, ", "))
}

// output opens path for writing, or stdout when path is empty.
func output(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
