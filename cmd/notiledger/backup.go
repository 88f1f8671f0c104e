package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [tag]",
		Short: "Write a consistent copy of the SQLite database",
		Long: `Copy the database next to it under backups/, with a JSON file describing
the schema version and row counts. The tag defaults to the current time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.sqliteOnly("backup")
			if err != nil {
				return err
			}

			var tag string
			if len(args) == 1 {
				tag = args[0]
			}
			info, err := store.Backup(ctx, tag)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s Created backup %s (%s, %d transactions)\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID),
				formatFileSize(info.FileSize),
				info.RowCounts["transactions"])
			return err
		},
	}

	cmd.AddCommand(backupListCmd())
	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.sqliteOnly("backup")
			if err != nil {
				return err
			}
			backups, err := store.ListBackups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				_, err := fmt.Fprintln(out, cli.SubtitleStyle.Render("No backups found."))
				return err
			}

			table := cli.NewTable(out, "Tag", "Created", "Size", "Schema", "Transactions")
			for _, b := range backups {
				table.Row(b.ID, cli.FormatTime(b.CreatedAt), formatFileSize(b.FileSize), b.SchemaVersion, b.RowCounts["transactions"])
			}
			return table.Flush()
		},
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
