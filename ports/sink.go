package ports

import (
	"context"

	"gomodsel/domain/comparison"
)

// ResultSink persists comparison results.
type ResultSink interface {
	// WritePreliminary flushes a single outcome as soon as it completes.
	WritePreliminary(ctx context.Context, outcome comparison.SelectionOutcome) error
	// WriteFinal writes the full table and its summary.
	WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error
}

// ResultReader loads previously written results.
type ResultReader interface {
	ReadTable(ctx context.Context) (*comparison.ComparisonTable, error)
}
