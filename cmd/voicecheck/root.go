package main

import (
	"time"

	"github.com/spf13/cobra"

	"voice_verification/config"
)

type rootOptions struct {
	configPath string
	storeRoot  string
	workDir    string
	logLevel   string
	verifier   string
	url        string
	threshold  float64
	timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "voicecheck",
		Short:         "Offline speaker verification against local files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "service config file; flags below override it")
	f.StringVar(&opts.storeRoot, "store", "", "storage root for identity-keyed sounds")
	f.StringVar(&opts.workDir, "work-dir", "", "parent directory for request workspaces")
	f.StringVar(&opts.logLevel, "log-level", "error", "log level")
	f.StringVar(&opts.verifier, "verifier", "", "verifier mode: spectral or remote")
	f.StringVar(&opts.url, "verifier-url", "", "base url of the remote verifier")
	f.Float64Var(&opts.threshold, "threshold", 0, "same-speaker decision threshold")
	f.DurationVar(&opts.timeout, "stage-timeout", 0, "per-stage timeout")

	cmd.AddCommand(
		newCompareCommand(opts),
		newArchiveCommand(opts),
	)

	return cmd
}

// load resolves the effective config: file first, then explicit flags.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := defaultConfig()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Storage.Backend = "fs"
		cfg.Storage.Root = o.storeRoot
	}
	if flags.Changed("work-dir") {
		cfg.Pipeline.WorkDir = o.workDir
	}
	if flags.Changed("log-level") || o.configPath == "" {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("verifier") {
		cfg.Verifier.Mode = o.verifier
	}
	if flags.Changed("verifier-url") {
		cfg.Verifier.URL = o.url
	}
	if flags.Changed("threshold") {
		cfg.Verifier.Threshold = o.threshold
	}
	if flags.Changed("stage-timeout") {
		cfg.Pipeline.StageTimeout = o.timeout
	}
	return cfg, nil
}

func defaultConfig() *config.Config {
	return &config.Config{
		Storage:  config.Storage{Backend: "fs", Root: "userSound"},
		Pipeline: config.Pipeline{StageTimeout: 30 * time.Second},
		Verifier: config.Verifier{Mode: "spectral", Timeout: 60 * time.Second, Threshold: 0.9},
		Log:      config.Log{Level: "error"},
	}
}
