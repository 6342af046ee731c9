package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	pennant "github.com/pennant-io/pennant-go"
)

func newEvaluateCommand(opts *cliOptions) *cobra.Command {
	var (
		featureKey  string
		variableKey string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a feature's flag, variation and variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := newInstance(opts)
			if err != nil {
				return err
			}
			context, err := parseContext(opts.contextJSON)
			if err != nil {
				return err
			}

			out := map[string]pennant.Evaluation{
				"flag":      instance.EvaluateFlag(featureKey, context),
				"variation": instance.EvaluateVariation(featureKey, context),
			}
			if variableKey != "" {
				out["variable"] = instance.EvaluateVariable(featureKey, variableKey, context)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}

	cmd.Flags().StringVar(&featureKey, "feature", "", "feature key to evaluate")
	cmd.Flags().StringVar(&variableKey, "variable", "", "variable key to resolve")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func newBucketCommand(opts *cliOptions) *cobra.Command {
	var featureKey string

	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Print a feature's bucket evaluation for a context",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := newInstance(opts)
			if err != nil {
				return err
			}
			context, err := parseContext(opts.contextJSON)
			if err != nil {
				return err
			}

			evaluation := instance.EvaluateFlag(featureKey, context)
			if evaluation.BucketValue == nil {
				return fmt.Errorf("no bucket value for feature %q (reason %s)", featureKey, evaluation.Reason)
			}
			fmt.Printf("%s\t%d\n", evaluation.BucketKey, *evaluation.BucketValue)
			return nil
		},
	}

	cmd.Flags().StringVar(&featureKey, "feature", "", "feature key to bucket")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

// datafileWaitTimeout bounds how long one-shot commands wait for a
// URL-sourced datafile before giving up.
const datafileWaitTimeout = 30 * time.Second

// newInstance builds an SDK instance from a local datafile or URL. A
// URL-backed instance fetches asynchronously, so this blocks until the
// first fetch succeeds; evaluating before then would run against the
// empty datafile and report every feature as notFound.
func newInstance(opts *cliOptions) (*pennant.Instance, error) {
	switch {
	case opts.datafilePath != "":
		content, err := loadDatafile(opts.datafilePath)
		if err != nil {
			return nil, err
		}
		return pennant.CreateInstance(pennant.Options{
			DatafileContent: content,
			Logger:          opts.log,
		})
	case opts.datafileURL != "":
		ready := make(chan struct{})
		instance, err := pennant.CreateInstance(pennant.Options{
			DatafileURL:     opts.datafileURL,
			RefreshInterval: opts.cfg.RefreshInterval,
			Logger:          opts.log,
			OnReady:         func() { close(ready) },
		})
		if err != nil {
			return nil, err
		}
		select {
		case <-ready:
			return instance, nil
		case <-time.After(datafileWaitTimeout):
			return nil, fmt.Errorf("datafile from %s not ready after %s", opts.datafileURL, datafileWaitTimeout)
		}
	default:
		return nil, fmt.Errorf("either --datafile or --url is required")
	}
}
