package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gomodsel/adapters/estimators"
	"gomodsel/adapters/selectors"
	"gomodsel/internal"
	"gomodsel/internal/config"
	"gomodsel/internal/pipeline"
)

func main() {
	config.LoadDotEnv()

	rootCmd := &cobra.Command{
		Use:           "gomodsel",
		Short:         "Compare feature-selection and classifier pipelines with bias-corrected nested resampling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSummarizeCmd(),
		newServeCmd(),
		newPipelinesCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, component string) *internal.Logger {
	return internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)).With(component)
}

// buildPipelines resolves the configured components, all of them when none
// are named.
func buildPipelines(selectorNames, estimatorNames []string) ([]*pipeline.Pipeline, error) {
	sels := selectors.All()
	if len(selectorNames) > 0 {
		var err error
		if sels, err = selectors.ByName(selectorNames...); err != nil {
			return nil, err
		}
	}
	ests := estimators.All()
	if len(estimatorNames) > 0 {
		var err error
		if ests, err = estimators.ByName(estimatorNames...); err != nil {
			return nil, err
		}
	}
	return pipeline.Build(sels, ests)
}

func newPipelinesCmd() *cobra.Command {
	var selectorNames, estimatorNames []string

	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List the candidate pipelines and their hyperparameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipes, err := buildPipelines(selectorNames, estimatorNames)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range pipes {
				var names []string
				for _, hp := range p.Space().Hyperparameters() {
					names = append(names, hp.Name())
				}
				fmt.Fprintf(out, "%s\t%s\n", p.ID(), strings.Join(names, " "))
			}
			fmt.Fprintf(out, "%d pipelines\n", len(pipes))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&selectorNames, "selectors", nil, fmt.Sprintf("Selectors to include (%s)", strings.Join(selectors.Names(), ", ")))
	cmd.Flags().StringSliceVar(&estimatorNames, "estimators", nil, fmt.Sprintf("Estimators to include (%s)", strings.Join(estimators.Names(), ", ")))
	return cmd
}
