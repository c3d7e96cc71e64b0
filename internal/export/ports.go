package export

import (
	"context"

	"worklog/internal/core"
)

// RowAppender pushes a month of rows to an external destination
// (a spreadsheet, a shared document).
type RowAppender interface {
	AppendRows(ctx context.Context, job string, year, month int, rows []core.ExportRow) error
}
