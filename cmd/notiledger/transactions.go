package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txn"},
		Short:   "List transactions and correct their categories",
	}
	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsCorrectCmd())
	return cmd
}

func transactionsListCmd() *cobra.Command {
	var (
		limit   int
		txnType string
		since   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := service.TransactionFilter{Limit: limit}
			if txnType != "" {
				filter.Type = model.ParseTransactionType(txnType)
				if filter.Type == model.TypeUnknown {
					return usageError("--type must be income or expense")
				}
			}
			if since > 0 {
				start := time.Now().Add(-since)
				filter.StartDate = &start
			}

			txns, err := a.store.ListTransactions(ctx, a.cfg.GroupID, filter)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("No transactions found."))
				return err
			}

			table := cli.NewTable(out, "ID", "When", "Bank", "Amount", "Merchant", "Category", "Confirmed")
			for _, t := range txns {
				table.Row(t.ID, cli.FormatTime(t.EventTime()), t.BankID, cli.FormatAmount(t.Amount, t.Type),
					cli.Truncate(t.Description, 24), t.Category, t.IsConfirmed)
			}
			return table.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows to show")
	cmd.Flags().StringVar(&txnType, "type", "", "only income or expense")
	cmd.Flags().DurationVar(&since, "since", 0, "only transactions newer than this (e.g. 72h)")
	return cmd
}

func transactionsCorrectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <transaction-id> <category>",
		Short: "Set a transaction's category and remember it for the merchant",
		Long: `Set the category of a transaction. The merchant is remembered so future
transactions from it get the same category: after enough corrections the
category is applied and confirmed automatically.`,
		Example: `  notiledger transactions correct 6f1c... CAFE`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			category := model.ParseCategory(args[1])
			if category == model.CategoryUncategorized && args[1] != string(model.CategoryUncategorized) {
				return usageError(fmt.Sprintf("unknown category %q", args[1]))
			}

			m, err := a.engine.CorrectCategory(ctx, a.cfg.GroupID, args[0], category)
			if err != nil {
				return err
			}

			mode := "suggested"
			if m.UseCount >= a.cfg.AutoApplyMinUses {
				mode = "applied automatically"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"%s is now %s (taught %d times, %s from now on)", m.OriginalMerchantName, m.Category, m.UseCount, mode)))
			return err
		},
	}
}
