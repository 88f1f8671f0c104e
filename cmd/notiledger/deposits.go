package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/deposit"
	"github.com/Veraticus/notiledger/internal/model"
)

func depositsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposits",
		Short: "Manage savings-goal deposit patterns and contributions",
		Long: `Incoming transfers that match a learned pattern are credited to a savings
goal. Confirming or rejecting a contribution teaches the pattern; a pattern
that fails more often than it succeeds is switched off until reactivated.`,
	}
	cmd.AddCommand(depositsPatternsCmd())
	cmd.AddCommand(depositsContributionsCmd())
	cmd.AddCommand(depositsConfirmCmd())
	cmd.AddCommand(depositsRejectCmd())
	cmd.AddCommand(depositsEditCmd())
	cmd.AddCommand(depositsRememberCmd())
	cmd.AddCommand(depositsReactivateCmd())
	return cmd
}

func depositsPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List deposit patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			patterns, err := a.store.ListDepositPatterns(ctx, a.cfg.GroupID)
			if err != nil {
				return fmt.Errorf("failed to list deposit patterns: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(patterns) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("No deposit patterns. Use 'notiledger deposits remember' to add one."))
				return err
			}

			table := cli.NewTable(out, "ID", "Goal", "Sender", "Account", "Bank", "OK", "Wrong", "Active")
			for _, p := range patterns {
				active := cli.SuccessStyle.Render("yes")
				if !p.IsActive {
					active = cli.ErrorStyle.Render("no")
				}
				table.Row(p.ID, p.SavingsGoalID, p.SenderNameRegex, dash(p.AccountNumberPattern), dash(p.BankName),
					p.SuccessCount, p.FailCount, active)
			}
			return table.Flush()
		},
	}
}

func depositsContributionsCmd() *cobra.Command {
	var reviewOnly bool

	cmd := &cobra.Command{
		Use:   "contributions",
		Short: "List contributions credited to savings goals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			contributions, err := a.store.ListSavingsContributions(ctx, a.cfg.GroupID, reviewOnly)
			if err != nil {
				return fmt.Errorf("failed to list contributions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(contributions) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("No contributions."))
				return err
			}

			table := cli.NewTable(out, "ID", "When", "Goal", "Sender", "Amount", "Confidence", "Review", "Edited")
			for _, c := range contributions {
				review := ""
				if c.NeedsReview {
					review = cli.WarningStyle.Render("needs review")
				}
				edited := ""
				if c.IsModified {
					edited = "by " + c.ModifiedBy
				}
				table.Row(c.ID, cli.FormatTime(c.CreatedAt), c.SavingsGoalID, dash(c.DetectedSenderName),
					cli.FormatAmount(c.Amount, model.TypeIncome), c.MatchConfidence, review, edited)
			}
			return table.Flush()
		},
	}

	cmd.Flags().BoolVar(&reviewOnly, "review", false, "only contributions that need review")
	return cmd
}

func depositsConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <contribution-id>",
		Short: "Confirm an automatically matched contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.engine.ConfirmContribution(ctx, a.cfg.GroupID, args[0])
			if err != nil {
				return err
			}
			return printContribution(cmd.OutOrStdout(), "Confirmed", c)
		},
	}
}

func depositsRejectCmd() *cobra.Command {
	var goalID string

	cmd := &cobra.Command{
		Use:   "reject <contribution-id>",
		Short: "Mark a match as wrong",
		Long: `Mark an automatic match as wrong. The pattern that produced it records a
failure. With --goal the contribution moves to the right goal; without it the
contribution is removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.engine.RejectContribution(ctx, a.cfg.GroupID, args[0], goalID, a.cfg.UserID)
			if err != nil {
				return err
			}
			if c == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Contribution removed"))
				return err
			}
			return printContribution(cmd.OutOrStdout(), "Moved", c)
		},
	}

	cmd.Flags().StringVar(&goalID, "goal", "", "savings goal the deposit actually belongs to")
	return cmd
}

func depositsEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <contribution-id> <amount>",
		Short: "Change a contribution's amount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return usageError(fmt.Sprintf("amount must be a whole number of won, got %q", args[1]))
			}

			c, err := a.engine.EditContribution(ctx, a.cfg.GroupID, args[0], amount, a.cfg.UserID)
			if err != nil {
				return err
			}
			return printContribution(cmd.OutOrStdout(), "Updated", c)
		},
	}
}

func depositsRememberCmd() *cobra.Command {
	var req deposit.RememberRequest

	cmd := &cobra.Command{
		Use:   "remember",
		Short: "Create a deposit pattern from a deposit you assigned by hand",
		Example: `  notiledger deposits remember --goal house --sender "홍길동" --account "123-***-789012"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req.GroupID = a.cfg.GroupID
			p, err := a.engine.RememberDeposit(ctx, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Deposits from %s now go to %s (pattern %s)", req.SenderName, p.SavingsGoalID, p.ID)))
			return err
		},
	}

	cmd.Flags().StringVar(&req.SavingsGoalID, "goal", "", "savings goal id (required)")
	cmd.Flags().StringVar(&req.SenderName, "sender", "", "sender name as it appears in the notification (required)")
	cmd.Flags().StringVar(&req.AccountMask, "account", "", "masked account number, e.g. 123-***-789012")
	cmd.Flags().StringVar(&req.BankName, "bank", "", "bank name shown in the notification")
	_ = cmd.MarkFlagRequired("goal")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func depositsReactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <pattern-id>",
		Short: "Turn a switched-off deposit pattern back on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.ReactivatePattern(ctx, a.cfg.GroupID, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Pattern reactivated"))
			return err
		},
	}
}

func printContribution(out io.Writer, verb string, c *model.SavingsContribution) error {
	_, err := fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s %s: %s to %s",
		verb, c.ID, cli.FormatAmount(c.Amount, model.TypeIncome), c.SavingsGoalID)))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
