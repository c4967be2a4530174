package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"voice_verification/entity"
	"voice_verification/internal/verification"
	"voice_verification/pkg/logger"
)

type compareOutput struct {
	entity.VerificationResult
	RequestID  string `json:"request_id"`
	StoredName string `json:"stored_name"`
	Location   string `json:"location"`
}

func newCompareCommand(root *rootOptions) *cobra.Command {
	var userID, soundID string

	cmd := &cobra.Command{
		Use:     "compare <file1> <file2>",
		Short:   "Score two recordings and store the second one",
		Args:    cobra.ExactArgs(2),
		Example: `voicecheck compare --user u42 --sound s7 enroll.wav probe.m4a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			uc, err := verification.FromConfig(cfg, logger.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			req := entity.AnalyzeRequest{UserID: userID, SoundID: soundID}
			for i, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return errors.Wrapf(err, "file%d", i+1)
				}
				defer f.Close()

				up := &entity.UploadedAudio{Field: []string{"file1", "file2"}[i], Filename: path, Body: f}
				if i == 0 {
					req.File1 = up
				} else {
					req.File2 = up
				}
			}

			analysis, err := uc.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(compareOutput{
				VerificationResult: analysis.Result,
				RequestID:          analysis.RequestID,
				StoredName:         analysis.Stored.Name,
				Location:           analysis.Stored.Location,
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id the stored sound belongs to")
	cmd.Flags().StringVar(&soundID, "sound", "", "sound id of the stored sound")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("sound")

	return cmd
}
