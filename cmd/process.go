package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"recscribe/internal/recordings"
	"recscribe/internal/worker"
)

func newProcessCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <key>",
		Short: "Run one pipeline step for a bucket key in the foreground",
		Long: `Runs the step a bucket notification would trigger: a recording key is
converted and submitted for recognition, a results key is rendered to CSV.`,
		Example: `  recscribe process 20240305/recordings/interview.wav
  recscribe process 20240305/results/interview.wav.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			kind := recordings.Classify(key)
			if kind == recordings.KindIgnored {
				return fmt.Errorf("%w: %s", worker.ErrUnsupportedJob, key)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer cache.Close()
			be, err := newBackend(cmd.Context(), cfg, cache)
			if err != nil {
				return err
			}
			if err := be.pipeline.Handle(cmd.Context(), worker.Job{Type: worker.Process, Kind: kind, Key: key}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %s (%s)\n", key, kind)
			return nil
		},
	}
	return cmd
}
