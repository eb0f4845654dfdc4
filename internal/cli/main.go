package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := NewRootCommand()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree. Exposed for tests.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "asrcurate <table.csv>",
		Short: "Filter an ASR training table into clean and quarantined rows",
		Long: "Runs every row of a wav_filename/transcript table through path, readability,\n" +
			"length and statistical gates (plus an optional ASR cross-check) and writes\n" +
			"<stem>.BEST next to the table with one <stem>.<REASON> file per rejecting gate.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.PersistentFlags().String("config", "", "TOML config file")
	root.PersistentFlags().String("ledger", "", "SQLite run ledger path")

	f := root.Flags()
	f.Float64("std-devs", 2, "Outlier band width in population standard deviations")
	f.Float64("max-duration", 30, "Reject clips longer than this many seconds")
	f.Int("min-transcript-len", 10, "Reject transcripts shorter than this many characters")
	f.Int("workers", 0, "Parallel rows per gate (0 = one per CPU)")
	f.String("model", "", "ASR model path")
	f.String("scorer", "", "ASR scorer path (coqui)")
	f.String("asr-engine", "whispercpp", "ASR engine: whispercpp or coqui")
	f.String("asr-bin", "", "ASR binary (default whisper-cli or stt)")
	f.Bool("no-asr", false, "Skip the ASR cross-check")
	f.Bool("strict-codec", false, "Require every row to share the detected audio type")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-format", "console", "Log format: console or json")
	f.String("progress", "auto", "Progress bars: auto, always, never")

	// Hidden tuning flag
	f.Float64("min-io-ratio", 1, "Minimum feature vectors per transcript character")
	_ = f.MarkHidden("min-io-ratio")

	root.AddCommand(newHistoryCommand())
	return root
}
