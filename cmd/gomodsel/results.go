package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gomodsel/adapters/sink"
	"gomodsel/domain/core"
	"gomodsel/internal/aggregate"
	"gomodsel/internal/api"
	"gomodsel/internal/config"
	"gomodsel/internal/report"
	"gomodsel/ports"
)

// openSinks always writes the CSV results file, plus a workbook and the
// database when configured.
func openSinks(ctx context.Context, cfg *config.Config) (sink.Multi, func(), error) {
	sinks := sink.Multi{sink.NewCSVSink(cfg.Output.PathFinalResults)}
	if cfg.Output.ResultsXLSX != "" {
		sinks = append(sinks, sink.NewExcelSink(cfg.Output.ResultsXLSX))
	}
	if cfg.Database.URL == "" {
		return sinks, func() {}, nil
	}
	db, err := sink.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	pg := sink.NewPostgresSink(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return append(sinks, pg), func() { db.Close() }, nil
}

// openReader prefers the database when one is configured.
func openReader(ctx context.Context, cfg *config.Config, runID string) (ports.ResultReader, func(), error) {
	if cfg.Database.URL == "" {
		return sink.NewCSVSink(cfg.Output.PathFinalResults), func() {}, nil
	}
	db, err := sink.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	pg := sink.NewPostgresSink(db)
	if runID != "" {
		if pg.RunID, err = core.ParseRunID(runID); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return pg, func() { db.Close() }, nil
}

type readFlags struct {
	input    string
	database string
	runID    string
}

func (rf *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rf.input, "input", "", "Results CSV (default PATH_FINAL_RESULTS)")
	cmd.Flags().StringVar(&rf.database, "database", "", "Read from this Postgres URL (default DATABASE_URL)")
	cmd.Flags().StringVar(&rf.runID, "run-id", "", "Run to read from the database (default latest)")
}

func (rf *readFlags) apply(cfg *config.Config) {
	if rf.input != "" {
		cfg.Output.PathFinalResults = rf.input
	}
	if rf.database != "" {
		cfg.Database.URL = rf.database
	}
}

func newSummarizeCmd() *cobra.Command {
	var rf readFlags
	var reportPath string
	var alpha float64

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Rank pipelines from stored results",
		Long: `Recompute the per-pipeline summary from a results file or database.

Interrupted runs are summarised from their preliminary rows when the final
file is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rf.apply(cfg)
			if cmd.Flags().Changed("alpha") {
				cfg.Run.Alpha = alpha
			}
			reader, closeReader, err := openReader(cmd.Context(), cfg, rf.runID)
			if err != nil {
				return err
			}
			defer closeReader()

			table, err := reader.ReadTable(cmd.Context())
			if err != nil {
				return fmt.Errorf("read results: %w", err)
			}
			summary := aggregate.Summarize(table, cfg.Run.Alpha)
			if reportPath != "" {
				if err := report.Write(reportPath, table, summary); err != nil {
					return err
				}
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown or HTML report")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Confidence interval level")
	return cmd
}

func newServeCmd() *cobra.Command {
	var rf readFlags
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rf.apply(cfg)
			if port != "" {
				cfg.Server.Port = port
			}
			reader, closeReader, err := openReader(cmd.Context(), cfg, rf.runID)
			if err != nil {
				return err
			}
			defer closeReader()

			srv := api.NewServer(reader, cfg.Run.Alpha, nil, newLogger(cfg, "API"))
			return srv.ListenAndServe(cmd.Context(), ":"+cfg.Server.Port)
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT)")
	return cmd
}
