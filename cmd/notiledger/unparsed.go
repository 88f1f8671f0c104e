package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
)

func unparsedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unparsed",
		Short: "Notifications that could not be parsed",
	}
	cmd.AddCommand(unparsedListCmd())
	cmd.AddCommand(unparsedRetryCmd())
	cmd.AddCommand(unparsedDeleteCmd())
	return cmd
}

func unparsedListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued notifications, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			queued, err := a.store.ListUnparsedNotifications(ctx, a.cfg.GroupID, limit)
			if err != nil {
				return fmt.Errorf("failed to list unparsed notifications: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(queued) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("Nothing queued."))
				return err
			}

			table := cli.NewTable(out, "ID", "Posted", "Package", "Reason", "Text")
			for _, u := range queued {
				table.Row(u.ID, cli.FormatTime(u.PostedAt), dash(u.SourcePackage), u.Reason, cli.Truncate(u.Text, 48))
			}
			return table.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows to show (0 for all)")
	return cmd
}

func unparsedRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Parse queued notifications again with the current catalog",
		Long: `Run every queued notification through the parser again, for example after
adding a custom bank pattern. Notifications that now parse are stored and
leave the queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			recovered, err := a.engine.RetryUnparsed(ctx, a.cfg.GroupID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recovered %d notifications", recovered)))
			return err
		},
	}
}

func unparsedDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Drop a queued notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteUnparsedNotification(ctx, a.cfg.GroupID, args[0]); err != nil {
				return fmt.Errorf("failed to delete notification: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted"))
			return err
		},
	}
}
