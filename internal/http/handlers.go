package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"worklog/internal/core"
	"worklog/internal/export/xlsx"
	"worklog/internal/ledger"
	applog "worklog/internal/log"
)

type statsView struct {
	Hours string
	Gross string
	Net   string
}

type entryView struct {
	ID          string
	Date        string
	Hours       string
	Description string
}

type indexData struct {
	Email       string
	Jobs        []string
	SelectedJob string
	JobStats    statsView
	GlobalStats statsView
	Rate        string
	Tax         string
	Entries     []entryView
	Today       string
	Year        int
	Month       int
	Message     string
	Error       string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		s.log.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Ledger start error", applog.FieldError, err, applog.FieldOwner, claims.Subject)
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}

	job := l.SelectedJob()
	settings := l.Settings(job)
	now := time.Now()

	data := indexData{
		Email:       claims.Email,
		Jobs:        l.Jobs(),
		SelectedJob: job,
		JobStats:    s.cachedStats(claims.Subject, job, l),
		GlobalStats: s.cachedGlobalStats(claims.Subject, l),
		Rate:        core.FormatAmount(settings.HourlyRate),
		Tax:         core.FormatAmount(settings.TaxPercent),
		Today:       now.Format("2006-01-02"),
		Year:        now.Year(),
		Month:       int(now.Month()),
		Message:     r.URL.Query().Get("msg"),
		Error:       r.URL.Query().Get("error"),
	}
	for _, e := range l.Entries(job) {
		data.Entries = append(data.Entries, entryView{
			ID:          e.ID,
			Date:        e.Date.String(),
			Hours:       core.FormatHours(e.Hours),
			Description: e.Description,
		})
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.ErrorContext(r.Context(), "Index template execution failed", applog.FieldError, err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// cachedStats serves job stats from the LRU when the ledger version has
// not moved since they were computed.
func (s *Server) cachedStats(owner, job string, l *ledger.Ledger) statsView {
	key := owner + "|" + job + "|" + strconv.FormatUint(l.Version(), 10)
	if v, ok := s.statsCache.Get(key); ok {
		return v
	}
	v := toStatsView(l.StatsFor(job))
	s.statsCache.Set(key, v)
	return v
}

func (s *Server) cachedGlobalStats(owner string, l *ledger.Ledger) statsView {
	key := owner + "|*|" + strconv.FormatUint(l.Version(), 10)
	if v, ok := s.statsCache.Get(key); ok {
		return v
	}
	v := toStatsView(l.GlobalStats())
	s.statsCache.Set(key, v)
	return v
}

func toStatsView(st core.Stats) statsView {
	return statsView{
		Hours: core.FormatHours(st.Hours),
		Gross: core.FormatAmount(st.Gross),
		Net:   core.FormatAmount(st.Net),
	}
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "Invalid request format")
		return
	}

	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		redirectError(w, r, "Ledger unavailable")
		return
	}

	date, err := core.ParseDate(strings.TrimSpace(r.Form.Get("date")))
	if err != nil {
		redirectError(w, r, "Please pick a valid date")
		return
	}
	hours, err := core.ParseHours(r.Form.Get("hours"))
	if err != nil {
		redirectError(w, r, "Hours must be a number greater than zero")
		return
	}
	description := sanitizeInput(r.Form.Get("description"))
	job := sanitizeInput(r.Form.Get("job"))

	if err := l.AddEntry(r.Context(), date, hours, description, job); err != nil {
		s.log.ErrorContext(r.Context(), "Entry create error", applog.FieldError, err, applog.FieldOwner, claims.Subject)
		redirectError(w, r, "Could not save the entry")
		return
	}
	http.Redirect(w, r, "/?msg="+url.QueryEscape("Entry added"), http.StatusSeeOther)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "Invalid request format")
		return
	}

	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		redirectError(w, r, "Ledger unavailable")
		return
	}

	id := strings.TrimSpace(r.Form.Get("id"))
	if id == "" {
		redirectError(w, r, "Missing entry id")
		return
	}
	if err := l.DeleteEntry(r.Context(), id); err != nil {
		s.log.ErrorContext(r.Context(), "Entry delete error", applog.FieldError, err, applog.FieldOwner, claims.Subject, applog.FieldEntryID, id)
		redirectError(w, r, "Could not delete the entry")
		return
	}
	http.Redirect(w, r, "/?msg="+url.QueryEscape("Entry deleted"), http.StatusSeeOther)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "Invalid request format")
		return
	}

	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		redirectError(w, r, "Ledger unavailable")
		return
	}

	job := sanitizeInput(r.Form.Get("job"))
	rate, err := core.ParseRate(r.Form.Get("rate"))
	if err != nil {
		redirectError(w, r, "Hourly rate must be zero or more")
		return
	}
	tax, err := core.ParsePercent(r.Form.Get("tax"))
	if err != nil {
		redirectError(w, r, "Tax must be between 0 and 100")
		return
	}

	if err := l.SetJobSettings(r.Context(), job, rate, tax); err != nil {
		s.log.ErrorContext(r.Context(), "Settings save error", applog.FieldError, err, applog.FieldOwner, claims.Subject, applog.FieldJob, job)
		redirectError(w, r, "Could not save the settings")
		return
	}
	http.Redirect(w, r, "/?msg="+url.QueryEscape("Settings saved"), http.StatusSeeOther)
}

func (s *Server) handleSelectJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "Invalid request format")
		return
	}

	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		redirectError(w, r, "Ledger unavailable")
		return
	}

	l.SelectJob(sanitizeInput(r.Form.Get("job")))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	claims := sessionClaims(r)
	l, err := s.ledgerFor(claims.Subject)
	if err != nil {
		redirectError(w, r, "Ledger unavailable")
		return
	}

	now := time.Now()
	job := l.SelectedJob()
	year, month := now.Year(), int(now.Month())
	if v := strings.TrimSpace(r.URL.Query().Get("job")); v != "" {
		job = v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	if month < 1 || month > 12 {
		redirectError(w, r, "Month must be between 1 and 12")
		return
	}

	rows, err := l.ExportMonth(job, year, month)
	if err != nil {
		if errors.Is(err, core.ErrNoEntries) {
			redirectError(w, r, "No entries to export for that month")
			return
		}
		s.log.ErrorContext(r.Context(), "Export error", applog.FieldError, err, applog.FieldOwner, claims.Subject, applog.FieldJob, job, applog.FieldYear, year, applog.FieldMonth, month)
		redirectError(w, r, "Could not export the month")
		return
	}

	if s.appender != nil {
		if err := s.appender.AppendRows(r.Context(), job, year, month, rows); err != nil {
			s.log.ErrorContext(r.Context(), "Spreadsheet append error", applog.FieldError, err, applog.FieldOwner, claims.Subject, applog.FieldJob, job)
			redirectError(w, r, "Could not send the export to the spreadsheet")
			return
		}
		http.Redirect(w, r, "/?msg="+url.QueryEscape("Month sent to the spreadsheet"), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+xlsx.FileName(job, year, month)+`"`)
	if err := xlsx.Write(w, job, year, month, rows); err != nil {
		s.log.ErrorContext(r.Context(), "Workbook write error", applog.FieldError, err, applog.FieldOwner, claims.Subject, applog.FieldJob, job)
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
