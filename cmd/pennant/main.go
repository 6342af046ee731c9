// Package main is the pennant command line tool.
//
// It evaluates features from a local or remote datafile:
//
//	pennant evaluate --datafile features.json --feature checkout --context '{"userId":"user-1"}'
//	pennant bucket --datafile features.json --feature checkout --context '{"userId":"user-1"}'
//	pennant watch --url https://cdn.example.com/datafile.json
//
// Configuration defaults come from the environment (see internal/config);
// flags override them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant-go/internal/config"
	"github.com/pennant-io/pennant-go/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliOptions struct {
	cfg config.Config
	log *slog.Logger

	datafilePath string
	datafileURL  string
	contextJSON  string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "pennant",
		Short:         "Evaluate feature flags from a declarative datafile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			opts.log = logging.New(cfg.LogLevel)
			slog.SetDefault(opts.log)

			if opts.datafilePath == "" {
				opts.datafilePath = cfg.DatafilePath
			}
			if opts.datafileURL == "" {
				opts.datafileURL = cfg.DatafileURL
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.datafilePath, "datafile", "", "path to a datafile (JSON or YAML)")
	root.PersistentFlags().StringVar(&opts.datafileURL, "url", "", "datafile URL")
	root.PersistentFlags().StringVar(&opts.contextJSON, "context", "{}", "evaluation context as JSON")

	root.AddCommand(
		newEvaluateCommand(opts),
		newBucketCommand(opts),
		newWatchCommand(opts),
	)
	return root
}
