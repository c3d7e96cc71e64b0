// Package core holds the work-log domain: entries, per-job pay settings,
// and the pure aggregation functions derived from them.
//
// This file contains boundary parsing and display formatting for the
// decimal quantities the domain works with (hours, rates, money).
package core

import (
	"math"
	"strconv"
	"strings"
)

// ParseHours converts a user-supplied hours string to a float64.
//
// It accepts both dot (7.5) and comma (7,5) decimal separators.
// Half-hour granularity is expected but not enforced; only positivity is.
//
// Examples:
//
//	ParseHours("7.5") -> 7.5, nil
//	ParseHours("7,5") -> 7.5, nil
//	ParseHours("0")   -> 0, ErrInvalidHours
func ParseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidHours
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidHours
	}
	if v <= 0 {
		return 0, ErrInvalidHours
	}
	return v, nil
}

// ParseRate converts a user-supplied hourly-rate string to a float64.
// Zero is allowed ("no rate configured yet"); negatives are not.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, ErrNegativeRate
	}
	return v, nil
}

// ParsePercent converts a user-supplied tax-percentage string to a
// float64 in [0,100]. An empty string means zero.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 100 {
		return 0, ErrTaxOutOfRange
	}
	return v, nil
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatAmount renders a monetary estimate with exactly 2 decimals, the
// form the export rows and templates use.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}

// FormatHours renders an hour quantity without trailing zeros (8, 7.5).
func FormatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
