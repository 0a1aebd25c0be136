package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventcollector/internal/archive"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export the group's recent event audit trail as JSONL to S3 and/or git",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ec := cfg.Export

		var dests []archive.Destination
		if ec.S3Bucket != "" {
			d, err := archive.NewS3Destination(ctx, ec.S3Bucket, ec.S3Key, ec.S3Region, ec.S3Endpoint)
			if err != nil {
				return fmt.Errorf("create S3 destination: %w", err)
			}
			dests = append(dests, d)
		}
		if ec.GitRepo != "" {
			dests = append(dests, archive.NewGitDestination(ec.GitRepo, ec.GitFile, ec.GitBranch))
		}
		if len(dests) == 0 {
			return fmt.Errorf("no export destination configured (set export.s3_bucket or export.git_repo)")
		}

		env, err := openRun(ctx, "export", false)
		if err != nil {
			return err
		}
		defer env.Close()

		x := archive.NewExporter(env.store, dests, ec.Window.Duration, env.logger)
		return x.Export(ctx, env.collector.Group().Group(), env.collector.Operations())
	},
}
