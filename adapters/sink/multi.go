package sink

import (
	"context"
	"errors"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/ports"
)

// Multi fans every write out to all sinks. Every sink is attempted; the
// errors are joined.
type Multi []ports.ResultSink

// RunStarter is implemented by sinks that reset state when a run starts.
type RunStarter interface {
	Begin(ctx context.Context, runID core.RunID) error
}

// Begin starts a run on every sink that keeps per-run state.
func (m Multi) Begin(ctx context.Context, runID core.RunID) error {
	var errs []error
	for _, s := range m {
		if rs, ok := s.(RunStarter); ok {
			errs = append(errs, rs.Begin(ctx, runID))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) WritePreliminary(ctx context.Context, o comparison.SelectionOutcome) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WritePreliminary(ctx, o))
	}
	return errors.Join(errs...)
}

func (m Multi) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteFinal(ctx, table, summary))
	}
	return errors.Join(errs...)
}
