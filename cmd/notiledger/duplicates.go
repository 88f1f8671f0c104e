package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/tui"
)

func duplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "duplicates",
		Aliases: []string{"dup"},
		Short:   "Review notifications that look like the same event",
		Long: `When a bank and a card issuer both report one purchase, or the same
notification arrives twice, the pair is held for review. Resolving a pair
removes the discarded transactions. With --remember the choice becomes a rule
and the same two banks are resolved automatically from then on.`,
	}
	cmd.AddCommand(duplicatesListCmd())
	cmd.AddCommand(duplicatesResolveCmd())
	cmd.AddCommand(duplicatesReviewCmd())
	return cmd
}

func duplicatesListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pairs awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.store.ListPendingDuplicates(ctx, a.cfg.GroupID, all)
			if err != nil {
				return fmt.Errorf("failed to list duplicates: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("Nothing to review."))
				return err
			}

			table := cli.NewTable(out, "ID", "Detected", "First", "Second", "Amount", "Resolution")
			for _, p := range pending {
				table.Row(p.ID, cli.FormatTime(p.CreatedAt),
					fmt.Sprintf("%s %s", p.First.BankID, cli.Truncate(p.First.Description, 16)),
					fmt.Sprintf("%s %s", p.Second.BankID, cli.Truncate(p.Second.Description, 16)),
					cli.FormatAmount(p.First.Amount, p.First.Type), p.Resolution)
			}
			return table.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include resolved pairs")
	return cmd
}

func duplicatesResolveCmd() *cobra.Command {
	var remember bool

	cmd := &cobra.Command{
		Use:   "resolve <id> <keep-both|keep-first|keep-second|delete-both>",
		Short: "Resolve one pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			resolution, err := parseResolutionArg(args[1])
			if err != nil {
				return err
			}

			res, err := a.engine.ResolveDuplicate(ctx, a.cfg.GroupID, args[0], resolution, remember)
			if err != nil {
				return err
			}
			return printResolution(cmd.OutOrStdout(), res, remember)
		},
	}

	cmd.Flags().BoolVar(&remember, "remember", false, "save the choice as a rule for this pair of banks")
	return cmd
}

func duplicatesReviewCmd() *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Walk through every pair awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.store.ListPendingDuplicates(ctx, a.cfg.GroupID, false)
			if err != nil {
				return fmt.Errorf("failed to list duplicates: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("Nothing to review."))
				return err
			}

			if useTUI {
				summary, err := tui.RunReview(ctx, tui.ReviewConfig{
					Resolver: a.engine,
					GroupID:  a.cfg.GroupID,
					Pending:  pending,
				})
				if err != nil {
					return err
				}
				return printReviewSummary(out, summary)
			}

			prompter := cli.NewDuplicatePrompter(cmd.InOrStdin(), out)
			prompter.SetTotal(len(pending))
			defer prompter.ShowCompletion()

			for _, p := range pending {
				decision, err := prompter.Review(ctx, p)
				if err != nil {
					if errors.Is(err, cli.ErrInputClosed) || errors.Is(err, cli.ErrInputCancelled) {
						return nil
					}
					return err
				}
				if decision.Skipped {
					continue
				}
				res, err := a.engine.ResolveDuplicate(ctx, a.cfg.GroupID, p.ID, decision.Resolution, decision.Remember)
				if err != nil {
					return err
				}
				if err := printResolution(out, res, decision.Remember); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "browse pairs in a full-screen view")
	return cmd
}

func parseResolutionArg(arg string) (model.Resolution, error) {
	r := model.ParseResolution(strings.ReplaceAll(arg, "-", "_"))
	if !r.IsTerminal() {
		return r, usageError(fmt.Sprintf("unknown resolution %q: use keep-both, keep-first, keep-second or delete-both", arg))
	}
	return r, nil
}

func printResolution(out io.Writer, res *duplicate.Result, remember bool) error {
	if !res.Applied {
		msg := fmt.Sprintf("Already resolved as %s, nothing changed.", res.Pending.Resolution)
		if len(res.Deleted) > 0 {
			msg = fmt.Sprintf("Already resolved as %s, finished removing %s.", res.Pending.Resolution, strings.Join(res.Deleted, ", "))
		}
		_, err := fmt.Fprintln(out, cli.FormatInfo(msg))
		return err
	}
	msg := fmt.Sprintf("Resolved as %s", res.Pending.Resolution)
	if len(res.Deleted) > 0 {
		msg += fmt.Sprintf(", removed %s", strings.Join(res.Deleted, ", "))
	}
	if remember && res.Pending.First.BankID != res.Pending.Second.BankID {
		msg += fmt.Sprintf("; %s + %s will be resolved automatically", res.Pending.First.BankID, res.Pending.Second.BankID)
	}
	_, err := fmt.Fprintln(out, cli.FormatSuccess(msg))
	return err
}

func printReviewSummary(out io.Writer, s tui.Summary) error {
	total := 0
	for _, n := range s.Resolved {
		total += n
	}
	_, err := fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Resolved %d pairs, %d still awaiting review", total, s.Remaining)))
	return err
}
