package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultJob is the sentinel job name. Entries created before jobs
	// existed carry no job field; they are mapped to this name once, at
	// ingestion from the store.
	DefaultJob = "general"

	// DefaultDescription fills in for entries saved with a blank description.
	DefaultDescription = "No description"
)

type (
	// Date is a calendar date with no time-of-day component (UTC midnight).
	Date struct {
		time.Time
	}

	// Entry is one dated record of hours worked, attributed to exactly
	// one owner and one job.
	Entry struct {
		ID          string
		Owner       string
		Date        Date
		Hours       float64
		Description string
		Job         string
		CreatedAt   time.Time // audit/tie-break only; UI orders by Date
	}

	// JobSettings carries the pay parameters for one job of one owner.
	// A missing settings record means rate 0, tax 0 — not an error.
	JobSettings struct {
		HourlyRate float64
		TaxPercent float64 // percentage in [0,100] subtracted from gross
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidHours     = errors.New("hours must be positive")
	ErrNegativeRate     = errors.New("hourly rate must not be negative")
	ErrTaxOutOfRange    = errors.New("tax percent must be between 0 and 100")
	ErrEmptyJob         = errors.New("empty job name")
	ErrEmptyOwner       = errors.New("empty owner")
	ErrDescriptionLimit = errors.New("description too long (max 200 characters)")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the YYYY-MM-DD format used by date inputs.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date in the same YYYY-MM-DD form it is parsed from.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// In reports whether the date falls within the given calendar year and
// month (1-12).
func (d Date) In(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

// NormalizeJob maps a raw job field to its canonical name: trimmed,
// case-sensitive, with missing/blank values replaced by DefaultJob.
func NormalizeJob(job string) string {
	job = strings.TrimSpace(job)
	if job == "" {
		return DefaultJob
	}
	return job
}

// Normalized returns a copy of the entry with the legacy-record rules
// applied: blank job mapped to DefaultJob, blank description replaced
// with the placeholder. Applied once at the store boundary.
func (e Entry) Normalized() Entry {
	e.Job = NormalizeJob(e.Job)
	if strings.TrimSpace(e.Description) == "" {
		e.Description = DefaultDescription
	}
	return e
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.Hours <= 0 {
		return ErrInvalidHours
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLimit
	}
	return nil
}

func (s JobSettings) Validate() error {
	if s.HourlyRate < 0 {
		return ErrNegativeRate
	}
	if s.TaxPercent < 0 || s.TaxPercent > 100 {
		return ErrTaxOutOfRange
	}
	return nil
}
