package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/asrcurate/internal/ledger"
	"github.com/forPelevin/asrcurate/internal/report"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded curation runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Ledger.Path == "" {
				return errors.New("no ledger configured (set --ledger or ledger.path)")
			}
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			rows := make([]report.Row, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, report.Row{
					RunID:      r.ID,
					Source:     r.Source,
					StartedAt:  r.RecordedAt,
					Status:     r.Status,
					Input:      r.Input,
					Final:      r.Final,
					FinalHours: r.FinalHours,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.History(rows))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to show")
	return cmd
}
