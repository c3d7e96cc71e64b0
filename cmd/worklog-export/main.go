// Command worklog-export writes one month of a user's entries to an
// xlsx file straight from the database, without going through the web UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"worklog/internal/core"
	"worklog/internal/export/xlsx"
	applog "worklog/internal/log"
	"worklog/internal/storage"
)

func main() {
	_ = godotenv.Load()

	// Stay quiet on stdout; progress goes through fmt, diagnostics to stderr.
	applog.SetDefault(applog.New(applog.Config{
		Component: applog.ComponentExport,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}))

	now := time.Now()
	var (
		dbPath = flag.String("db", envOr("SQLITE_DB_PATH", "./data/worklog.db"), "path to the SQLite database")
		email  = flag.String("email", "", "account email to export (required)")
		job    = flag.String("job", core.DefaultJob, "job to export")
		year   = flag.Int("year", now.Year(), "year to export")
		month  = flag.Int("month", int(now.Month()), "month to export (1-12)")
		out    = flag.String("out", "", "output file (default work_log_<job>_<year>_<month>.xlsx)")
	)
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "missing -email")
		flag.Usage()
		os.Exit(2)
	}
	if *month < 1 || *month > 12 {
		fmt.Fprintf(os.Stderr, "invalid month %d: must be 1-12\n", *month)
		os.Exit(2)
	}

	if err := run(*dbPath, *email, *job, *year, *month, *out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dbPath, email, job string, year, month int, out string) error {
	ctx := context.Background()

	repo, err := storage.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	user, err := repo.UserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up %s: %w", email, err)
	}

	entries, err := repo.EntriesFor(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("read entries: %w", err)
	}
	settings, err := repo.SettingsFor(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	rows, err := core.MonthRows(job, year, month, entries, settings)
	if err != nil {
		if errors.Is(err, core.ErrNoEntries) {
			return fmt.Errorf("no entries for %s in %d-%02d", job, year, month)
		}
		return err
	}

	if out == "" {
		out = xlsx.FileName(job, year, month)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()

	if err := xlsx.Write(f, job, year, month, rows); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	fmt.Printf("wrote %d rows to %s\n", len(rows), out)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
