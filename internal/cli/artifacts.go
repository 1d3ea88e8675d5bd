package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/machreg-e2e/internal/artifacts"
	"github.com/kuitang/machreg-e2e/internal/config"
	"github.com/kuitang/machreg-e2e/internal/errs"
)

func newArtifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <run-id>",
		Short: "List failure screenshots uploaded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cfg.ArtifactsEnabled() {
				return errs.New(errs.InvalidArgument, "ARTIFACTS_BUCKET is not set")
			}
			store, err := artifacts.New(cmd.Context(), artifacts.Config{
				Endpoint:        cfg.AWSEndpointS3,
				Region:          cfg.AWSRegion,
				AccessKeyID:     cfg.AWSAccessKeyID,
				SecretAccessKey: cfg.AWSSecretAccessKey,
				BucketName:      cfg.ArtifactsBucket,
				UsePathStyle:    cfg.AWSEndpointS3 != "",
			})
			if err != nil {
				return err
			}
			return listArtifacts(cmd, store, args[0])
		},
	}
}

func listArtifacts(cmd *cobra.Command, store *artifacts.Store, runID string) error {
	keys, err := store.List(cmd.Context(), runID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintf(out, "No artifacts for %s\n", runID)
		return nil
	}
	for _, key := range keys {
		fmt.Fprintf(out, "s3://%s/%s\n", store.BucketName(), key)
	}
	return nil
}
