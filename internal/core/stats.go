package core

import (
	"errors"
	"sort"
)

// Stats aggregates a set of entries into worked hours and estimated pay.
type Stats struct {
	Hours float64
	Gross float64
	Net   float64
}

// ExportRow is one spreadsheet line of a month export. EstimatedPay is
// pre-formatted to 2 decimals; layout beyond that is the formatter's
// concern.
type ExportRow struct {
	Date         string
	Hours        float64
	HourlyRate   float64
	EstimatedPay string
	Description  string
}

// ErrNoEntries signals an export over a job/month with nothing in it.
// Not a failure: callers show "nothing to export" instead of an empty file.
var ErrNoEntries = errors.New("no entries for the requested month")

// JobList returns the distinct job names across entries and settings,
// always including DefaultJob, sorted ascending. Pure: derived only from
// its inputs, which it does not mutate.
func JobList(entries []Entry, settings map[string]JobSettings) []string {
	seen := map[string]struct{}{DefaultJob: {}}
	for _, e := range entries {
		seen[NormalizeJob(e.Job)] = struct{}{}
	}
	for job := range settings {
		seen[NormalizeJob(job)] = struct{}{}
	}
	jobs := make([]string, 0, len(seen))
	for job := range seen {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	return jobs
}

// StatsFor sums the hours of the entries attributed to job and prices
// them with that job's settings. A job with no settings record yields
// gross 0, net 0. Out-of-range tax values are not clamped here; range
// checks belong at the input boundary.
func StatsFor(job string, entries []Entry, settings map[string]JobSettings) Stats {
	job = NormalizeJob(job)
	s := settings[job]
	var hours float64
	for _, e := range entries {
		if NormalizeJob(e.Job) == job {
			hours += e.Hours
		}
	}
	gross := hours * s.HourlyRate
	return Stats{
		Hours: hours,
		Gross: gross,
		Net:   gross * (1 - s.TaxPercent/100),
	}
}

// GlobalStats aggregates across all jobs. Net is accumulated per entry
// with that entry's own job's rate and tax: jobs carry different tax
// rates, so global net is not derivable from global gross and any single
// tax value.
func GlobalStats(entries []Entry, settings map[string]JobSettings) Stats {
	var out Stats
	for _, e := range entries {
		s := settings[NormalizeJob(e.Job)]
		gross := e.Hours * s.HourlyRate
		out.Hours += e.Hours
		out.Gross += gross
		out.Net += gross * (1 - s.TaxPercent/100)
	}
	return out
}

// MonthRows builds the export rows for one job and calendar month
// (1-indexed, January = 1): one row per entry, dated ascending, priced
// at the job's hourly rate. Returns ErrNoEntries when nothing matches.
func MonthRows(job string, year, month int, entries []Entry, settings map[string]JobSettings) ([]ExportRow, error) {
	job = NormalizeJob(job)
	rate := settings[job].HourlyRate

	var matched []Entry
	for _, e := range entries {
		if NormalizeJob(e.Job) == job && e.Date.In(year, month) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil, ErrNoEntries
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date.Time)
	})

	rows := make([]ExportRow, len(matched))
	for i, e := range matched {
		rows[i] = ExportRow{
			Date:         e.Date.String(),
			Hours:        e.Hours,
			HourlyRate:   rate,
			EstimatedPay: FormatAmount(e.Hours * rate),
			Description:  e.Description,
		}
	}
	return rows, nil
}

// SortedByDateDesc returns a copy of entries in the display order the UI
// uses: date descending, creation time as tie-break.
func SortedByDateDesc(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
