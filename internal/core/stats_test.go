package core

import (
	"math"
	"testing"
	"time"
)

func entry(job string, y, m, d int, hours float64) Entry {
	return Entry{
		ID:          "x",
		Owner:       "u1",
		Date:        NewDate(y, m, d),
		Hours:       hours,
		Description: "work",
		Job:         job,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJobListAlwaysContainsDefault(t *testing.T) {
	jobs := JobList(nil, nil)
	if len(jobs) != 1 || jobs[0] != DefaultJob {
		t.Fatalf("empty inputs: got %v, want [%s]", jobs, DefaultJob)
	}
}

func TestJobListUnionSortedDeduped(t *testing.T) {
	entries := []Entry{
		entry("acme", 2024, 1, 2, 4),
		entry("acme", 2024, 1, 3, 4),
		entry("", 2024, 1, 4, 1), // legacy entry, maps to the default job
	}
	settings := map[string]JobSettings{
		"zeta": {HourlyRate: 10},
		"acme": {HourlyRate: 20},
	}
	jobs := JobList(entries, settings)
	want := []string{"acme", DefaultJob, "zeta"}
	if len(jobs) != len(want) {
		t.Fatalf("got %v, want %v", jobs, want)
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Fatalf("got %v, want %v", jobs, want)
		}
	}
}

func TestStatsForNoSettings(t *testing.T) {
	entries := []Entry{
		entry("acme", 2024, 1, 2, 3),
		entry("acme", 2024, 1, 3, 4.5),
		entry("other", 2024, 1, 3, 2),
	}
	s := StatsFor("acme", entries, map[string]JobSettings{})
	if !almostEqual(s.Hours, 7.5) {
		t.Fatalf("hours = %v, want 7.5", s.Hours)
	}
	if s.Gross != 0 || s.Net != 0 {
		t.Fatalf("missing settings must price to zero, got gross=%v net=%v", s.Gross, s.Net)
	}
}

func TestStatsForWithRateAndTax(t *testing.T) {
	entries := []Entry{entry("acme", 2024, 1, 2, 10)}
	settings := map[string]JobSettings{"acme": {HourlyRate: 100, TaxPercent: 25}}
	s := StatsFor("acme", entries, settings)
	if !almostEqual(s.Gross, 1000) || !almostEqual(s.Net, 750) {
		t.Fatalf("got gross=%v net=%v, want 1000/750", s.Gross, s.Net)
	}
}

// Hours must partition exactly by job: summing per-job stats over the
// job list recovers the total of the entry set.
func TestHoursPartitionByJob(t *testing.T) {
	entries := []Entry{
		entry("a", 2024, 1, 1, 2),
		entry("a", 2024, 1, 2, 3.5),
		entry("b", 2024, 2, 1, 1),
		entry("", 2024, 2, 2, 4), // legacy
		entry("c", 2024, 3, 1, 0.5),
	}
	settings := map[string]JobSettings{"d": {HourlyRate: 5}}

	var total float64
	for _, e := range entries {
		total += e.Hours
	}
	var sum float64
	for _, job := range JobList(entries, settings) {
		sum += StatsFor(job, entries, settings).Hours
	}
	if !almostEqual(sum, total) {
		t.Fatalf("per-job hours sum to %v, entry total is %v", sum, total)
	}
}

// Global net is the sum of per-entry net contributions, each priced with
// its own job's rate and tax. With two jobs at different tax rates it is
// not gross*(1-tax/100) for any single tax value.
func TestGlobalStatsPerEntryNet(t *testing.T) {
	entries := []Entry{
		entry("a", 2024, 1, 1, 10),
		entry("b", 2024, 1, 2, 10),
	}
	settings := map[string]JobSettings{
		"a": {HourlyRate: 100, TaxPercent: 0},
		"b": {HourlyRate: 50, TaxPercent: 50},
	}
	g := GlobalStats(entries, settings)
	if !almostEqual(g.Hours, 20) {
		t.Fatalf("hours = %v, want 20", g.Hours)
	}
	if !almostEqual(g.Gross, 1500) {
		t.Fatalf("gross = %v, want 1500", g.Gross)
	}
	if !almostEqual(g.Net, 1250) {
		t.Fatalf("net = %v, want 1250 (1000 from a + 250 from b)", g.Net)
	}
	for _, tax := range []float64{0, 50} {
		if almostEqual(g.Net, g.Gross*(1-tax/100)) {
			t.Fatalf("net %v must not equal gross*(1-%v/100)", g.Net, tax)
		}
	}
}

func TestGlobalStatsMissingSettingsDefaultToZero(t *testing.T) {
	entries := []Entry{
		entry("a", 2024, 1, 1, 10),
		entry("b", 2024, 1, 2, 5),
	}
	settings := map[string]JobSettings{"a": {HourlyRate: 10, TaxPercent: 10}}
	g := GlobalStats(entries, settings)
	if !almostEqual(g.Hours, 15) || !almostEqual(g.Gross, 100) || !almostEqual(g.Net, 90) {
		t.Fatalf("got %+v, want hours=15 gross=100 net=90", g)
	}
}

func TestMonthRowsFiltersByCalendarMonth(t *testing.T) {
	entries := []Entry{
		entry("A", 2024, 1, 15, 5),
		entry("A", 2024, 2, 1, 3),
	}
	settings := map[string]JobSettings{"A": {HourlyRate: 40}}

	rows, err := MonthRows("A", 2024, 1, entries, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want exactly the January entry", len(rows))
	}
	r := rows[0]
	if r.Date != "2024-01-15" || r.Hours != 5 || r.HourlyRate != 40 {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.EstimatedPay != "200.00" {
		t.Fatalf("estimated pay = %q, want 200.00", r.EstimatedPay)
	}
}

func TestMonthRowsEmptyMonth(t *testing.T) {
	entries := []Entry{entry("A", 2024, 1, 15, 5)}
	if _, err := MonthRows("A", 2024, 3, entries, nil); err != ErrNoEntries {
		t.Fatalf("got %v, want ErrNoEntries", err)
	}
	if _, err := MonthRows("B", 2024, 1, entries, nil); err != ErrNoEntries {
		t.Fatalf("other job: got %v, want ErrNoEntries", err)
	}
}

func TestMonthRowsOrderedAscending(t *testing.T) {
	entries := []Entry{
		entry("A", 2024, 1, 20, 1),
		entry("A", 2024, 1, 5, 2),
		entry("A", 2024, 1, 12, 3),
	}
	rows, err := MonthRows("A", 2024, 1, entries, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2024-01-05", "2024-01-12", "2024-01-20"}
	for i, w := range want {
		if rows[i].Date != w {
			t.Fatalf("row %d date = %s, want %s", i, rows[i].Date, w)
		}
	}
}

func TestSortedByDateDescDoesNotMutate(t *testing.T) {
	early := entry("a", 2024, 1, 1, 1)
	late := entry("a", 2024, 3, 1, 1)
	sameDayOld := entry("a", 2024, 2, 1, 1)
	sameDayNew := entry("a", 2024, 2, 1, 1)
	sameDayOld.CreatedAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	sameDayNew.CreatedAt = time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC)

	in := []Entry{early, sameDayOld, late, sameDayNew}
	out := SortedByDateDesc(in)

	if in[0].Date.String() != "2024-01-01" {
		t.Fatalf("input slice was reordered")
	}
	got := []string{out[0].Date.String(), out[1].Date.String(), out[2].Date.String(), out[3].Date.String()}
	want := []string{"2024-03-01", "2024-02-01", "2024-02-01", "2024-01-01"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if !out[1].CreatedAt.After(out[2].CreatedAt) {
		t.Fatalf("same-day entries must tie-break by creation time, newest first")
	}
}
