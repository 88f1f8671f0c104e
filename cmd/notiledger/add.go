package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/engine"
)

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Record a transaction from pasted notification or message text",
		Long: `Parse text you typed or pasted, such as a forwarded SMS, and store it as a
transaction. Every enabled bank is tried. Nothing is stored when the text
cannot be read.`,
		Example: `  notiledger add "[KB국민카드] 승인 32,000원 이마트 03/15 18:20"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.ProcessManualText(ctx, a.cfg.GroupID, a.cfg.UserID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
}

// printResult reports what the engine did with one notification.
func printResult(out io.Writer, res *engine.Result) error {
	switch res.Status {
	case engine.StatusUnparsed:
		_, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Not parsed, queued for manual entry: %v", res.ParseError)))
		return err
	case engine.StatusAlreadyIngested:
		_, err := fmt.Fprintln(out, cli.FormatInfo("Already recorded, nothing to do."))
		return err
	case engine.StatusDuplicateDropped:
		_, err := fmt.Fprintln(out, cli.FormatInfo("Dropped as a duplicate by a saved rule."))
		return err
	}

	if err := printTransaction(out, "Transaction Recorded", res.Transaction); err != nil {
		return err
	}
	if len(res.Deleted) > 0 {
		if _, err := fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Removed duplicate %s by a saved rule.", strings.Join(res.Deleted, ", ")))); err != nil {
			return err
		}
	}
	if res.Pending != nil {
		if _, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Possible duplicate of %s, review with: notiledger duplicates review", res.Pending.First.TransactionID))); err != nil {
			return err
		}
	}
	if len(res.Contributions) > 1 {
		if _, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Deposit matches %d savings goals, confirm one with: notiledger deposits confirm", len(res.Contributions)))); err != nil {
			return err
		}
	}
	for _, c := range res.Contributions {
		msg := fmt.Sprintf("Matched to savings goal %s (%s confidence)", c.SavingsGoalID, c.MatchConfidence)
		if c.NeedsReview {
			msg += ", needs review"
		}
		if _, err := fmt.Fprintln(out, cli.FormatSuccess(msg)); err != nil {
			return err
		}
	}
	return nil
}
