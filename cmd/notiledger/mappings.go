package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/mapping"
	"github.com/Veraticus/notiledger/internal/model"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect the merchant categories learned from corrections",
	}
	cmd.AddCommand(mappingsListCmd())
	cmd.AddCommand(mappingsSuggestCmd())
	cmd.AddCommand(mappingsDeleteCmd())
	return cmd
}

func mappingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned mappings, most used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			mappings, err := a.store.ListLearnedMappings(ctx, a.cfg.GroupID)
			if err != nil {
				return fmt.Errorf("failed to list mappings: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("Nothing learned yet. Use 'notiledger transactions correct' to teach a category."))
				return err
			}

			table := cli.NewTable(out, "ID", "Merchant", "Type", "Category", "Uses", "Mode", "Last used")
			for _, m := range mappings {
				mode := "suggest"
				if m.UseCount >= a.cfg.AutoApplyMinUses {
					mode = "auto"
				}
				table.Row(m.ID, m.OriginalMerchantName, m.TransactionType, m.Category, m.UseCount, mode, cli.FormatTime(m.LastUsedAt))
			}
			return table.Flush()
		},
	}
}

func mappingsSuggestCmd() *cobra.Command {
	var txnType string

	cmd := &cobra.Command{
		Use:   "suggest <merchant>",
		Short: "Show the category that would be suggested for a merchant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			t := model.ParseTransactionType(txnType)
			if t == model.TypeUnknown {
				return usageError("--type must be income or expense")
			}

			merchant := strings.Join(args, " ")
			s, ok, err := a.engine.SuggestCategory(ctx, a.cfg.GroupID, merchant, t)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				_, err := fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("No learned category for %q (normalized %q)", merchant, mapping.Normalize(merchant))))
				return err
			}
			_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s (used %d times, auto-apply: %t)", s.Category, s.UseCount, s.AutoApply)))
			return err
		},
	}

	cmd.Flags().StringVar(&txnType, "type", string(model.TypeExpense), "transaction type: income or expense")
	return cmd
}

func mappingsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Forget a learned mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteLearnedMapping(ctx, a.cfg.GroupID, args[0]); err != nil {
				return fmt.Errorf("failed to delete mapping: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Mapping deleted"))
			return err
		},
	}
}
