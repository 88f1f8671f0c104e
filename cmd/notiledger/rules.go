package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automatic duplicate resolutions",
		Long: `A rule names two banks and what to do when both report the same event.
The first bank is the one whose notification arrives first; rules apply in
either order.`,
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeleteCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List duplicate rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.store.GetDuplicateRules(ctx, a.cfg.GroupID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(rules) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("No duplicate rules. Resolve a pair with --remember to create one."))
				return err
			}

			table := cli.NewTable(out, "ID", "First bank", "Second bank", "Resolution", "Created")
			for _, r := range rules {
				table.Row(r.ID, r.Bank1ID, r.Bank2ID, r.Resolution, cli.FormatTime(r.CreatedAt))
			}
			return table.Flush()
		},
	}
}

func rulesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <first-bank> <second-bank> <keep-both|keep-first|keep-second|delete-both>",
		Short:   "Add a rule",
		Example: `  notiledger rules add kb_kookmin kb_card keep-second`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			resolution, err := parseResolutionArg(args[2])
			if err != nil {
				return err
			}
			snap := a.provider.Current()
			for _, id := range args[:2] {
				if _, ok := snap.Bank(id); !ok {
					cmd.PrintErrln(cli.FormatWarning(fmt.Sprintf("%s is not a known bank id", id)))
				}
			}

			rule := &model.DuplicateRule{
				ID:         uuid.NewString(),
				GroupID:    a.cfg.GroupID,
				Bank1ID:    args[0],
				Bank2ID:    args[1],
				Resolution: resolution,
				CreatedAt:  time.Now(),
			}
			if err := a.store.SaveDuplicateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to save rule: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule saved: %s + %s → %s", rule.Bank1ID, rule.Bank2ID, rule.Resolution)))
			return err
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteDuplicateRule(ctx, a.cfg.GroupID, args[0]); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Rule deleted"))
			return err
		},
	}
}
