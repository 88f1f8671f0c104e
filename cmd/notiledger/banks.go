package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/common"
)

func banksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banks",
		Short: "Inspect the bank catalog and manage custom bank patterns",
		Long: `The catalog is the built-in bank configurations, the entries of the
catalog overrides file and the custom patterns stored for the group. A custom
pattern with the same bank id as a built-in one replaces it.`,
	}
	cmd.AddCommand(banksListCmd())
	cmd.AddCommand(banksMerchantsCmd())
	cmd.AddCommand(banksAddCmd())
	cmd.AddCommand(banksRemoveCmd())
	return cmd
}

func banksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List banks in the order they are tried",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.engine.Snapshot(ctx, a.cfg.GroupID)
			if err != nil {
				return err
			}

			table := cli.NewTable(cmd.OutOrStdout(), "ID", "Name", "Packages", "Income words", "Expense words", "Source", "Enabled")
			for _, b := range snap.Banks() {
				source := "built-in"
				if b.IsCustom {
					source = "custom"
				}
				table.Row(b.Config.BankID, b.Config.DisplayName,
					strings.Join(b.Config.PackageNames, ","),
					cli.Truncate(strings.Join(b.Config.IncomeKeywords, ","), 24),
					cli.Truncate(strings.Join(b.Config.ExpenseKeywords, ","), 24),
					source, b.IsEnabled)
			}
			return table.Flush()
		},
	}
}

func banksMerchantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merchants",
		Short: "List merchants in matching order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			table := cli.NewTable(cmd.OutOrStdout(), "ID", "Name", "Category", "Keywords")
			for _, m := range a.provider.Current().Merchants() {
				table.Row(m.ID, m.DisplayName, m.DefaultCategory, cli.Truncate(strings.Join(m.Keywords, ","), 40))
			}
			return table.Flush()
		},
	}
}

func banksAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file.yaml>",
		Short: "Store the custom bank patterns of a YAML file for the group",
		Long: `Read bank entries in the catalog overrides format and store them as the
group's custom patterns. Stored patterns are shared by every device of the
group, unlike the local overrides file.`,
		Example: `  # banks.yaml
  banks:
    - bank_id: local_bank
      display_name: 우리동네은행
      package_names: [com.example.localbank]
      amount_regex: '([0-9,]+)원'
      income_keywords: [입금]
      expense_keywords: [출금]
      merchant_regex_list: ['출금 [0-9,]+원 (\S+)']

  notiledger banks add banks.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			overrides, err := catalog.LoadOverrides(args[0])
			if err != nil {
				return err
			}
			if len(overrides.Banks) == 0 {
				return usageError(fmt.Sprintf("%s has no bank entries", args[0]))
			}

			now := time.Now()
			for i := range overrides.Banks {
				p := overrides.Banks[i]
				p.GroupID = a.cfg.GroupID
				p.LastModified = now
				if err := p.Validate(); err != nil {
					return common.NewUserError(fmt.Sprintf("bank entry %d is invalid", i+1), err)
				}
				if err := a.store.SaveCustomBankPattern(ctx, &p); err != nil {
					return fmt.Errorf("failed to save bank %s: %w", p.BankID, err)
				}
				cmd.Println(cli.FormatSuccess(fmt.Sprintf("Saved %s (%s)", p.BankID, p.DisplayName)))
			}
			return nil
		},
	}
}

func banksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <bank-id>",
		Short: "Remove a stored custom bank pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteCustomBankPattern(ctx, a.cfg.GroupID, args[0]); err != nil {
				return fmt.Errorf("failed to remove bank %s: %w", args[0], err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed %s", args[0])))
			return err
		},
	}
}
