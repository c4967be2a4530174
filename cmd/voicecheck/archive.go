package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"voice_verification/internal/verification"
	"voice_verification/pkg/logger"
)

func newArchiveCommand(root *rootOptions) *cobra.Command {
	var userID, output string
	var plain bool

	cmd := &cobra.Command{
		Use:     "archive",
		Short:   "Export every stored sound of a user as tar.gz",
		Args:    cobra.NoArgs,
		Example: `voicecheck archive --user u42 -o u42.tar.gz`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			uc, err := verification.FromConfig(cfg, logger.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(err, "create output")
				}
				defer f.Close()
				w = f
			}

			if err := uc.Archive(cmd.Context(), userID, !plain, w); err != nil {
				if output != "" && output != "-" {
					os.Remove(output)
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to export")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	cmd.Flags().BoolVar(&plain, "tar", false, "write an uncompressed tar")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
