package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forPelevin/asrcurate/internal/config"
	"github.com/forPelevin/asrcurate/internal/logging"
	"github.com/forPelevin/asrcurate/internal/pipeline"
)

func run(cmd *cobra.Command, source string) error {
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source table: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrModelRequired) {
			return fmt.Errorf("%w: pass --model or --no-asr", err)
		}
		return err
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = pipeline.Run(ctx, pipeline.Params{
		Source:      source,
		Config:      cfg,
		Log:         log,
		Out:         cmd.OutOrStdout(),
		ProgressOut: os.Stderr,
	})
	return err
}

// loadConfig layers explicitly set flags over file and environment values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func(*pflag.Flag)) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply(f)
		}
	}
	set("ledger", func(*pflag.Flag) { cfg.Ledger.Path, _ = flags.GetString("ledger") })
	set("std-devs", func(*pflag.Flag) { cfg.Filter.NumStdDevs, _ = flags.GetFloat64("std-devs") })
	set("max-duration", func(*pflag.Flag) { cfg.Filter.MaxDurationSec, _ = flags.GetFloat64("max-duration") })
	set("min-transcript-len", func(*pflag.Flag) { cfg.Filter.MinTranscriptLen, _ = flags.GetInt("min-transcript-len") })
	set("min-io-ratio", func(*pflag.Flag) { cfg.Filter.MinIORatio, _ = flags.GetFloat64("min-io-ratio") })
	set("workers", func(*pflag.Flag) { cfg.Filter.Workers, _ = flags.GetInt("workers") })
	set("model", func(*pflag.Flag) { cfg.ASR.Model, _ = flags.GetString("model") })
	set("scorer", func(*pflag.Flag) { cfg.ASR.Scorer, _ = flags.GetString("scorer") })
	set("asr-engine", func(*pflag.Flag) { cfg.ASR.Engine, _ = flags.GetString("asr-engine") })
	set("asr-bin", func(*pflag.Flag) { cfg.ASR.Bin, _ = flags.GetString("asr-bin") })
	set("no-asr", func(*pflag.Flag) {
		off, _ := flags.GetBool("no-asr")
		cfg.ASR.Enabled = !off
	})
	set("strict-codec", func(*pflag.Flag) { cfg.Audio.StrictCodec, _ = flags.GetBool("strict-codec") })
	set("log-level", func(*pflag.Flag) { cfg.Logging.Level, _ = flags.GetString("log-level") })
	set("log-format", func(*pflag.Flag) { cfg.Logging.Format, _ = flags.GetString("log-format") })
	set("progress", func(*pflag.Flag) { cfg.Output.Progress, _ = flags.GetString("progress") })
	return cfg, nil
}
