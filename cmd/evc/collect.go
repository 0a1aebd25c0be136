package main

import (
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:     "collect",
	Short:   "Retrieve queued events from every origin, then deliver the group's processable events",
	GroupID: "runs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openRun(ctx, "collect", true)
		if err != nil {
			return err
		}
		defer env.Close()

		env.logger.Info("collector run started", "group", cfg.CollectorGroup)
		if err := env.collector.Collect(ctx); err != nil {
			return err
		}
		env.logger.Info("collector run finished")
		return nil
	},
}
