// Package export defines the outbound port for pushing transaction records
// to an external spreadsheet.
package export

import (
	"context"

	"tally/internal/core"
)

// RowAppender appends one transaction as a row and returns a reference to
// the written range.
type RowAppender interface {
	AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
