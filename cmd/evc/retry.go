package main

import (
	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:     "retry",
	Short:   "Mark superseded error events obsolete and replay the rest of the retry window",
	GroupID: "runs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openRun(ctx, "retry", true)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.collector.Retry(ctx)
		env.logger.Info("retry run finished",
			"initial_id", stats.InitialID,
			"elements", stats.Elements,
			"obsoleted", stats.Obsoleted,
			"reprocessed", stats.Reprocessed,
		)
		return err
	},
}
