package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/notiledger/internal/cli"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/parser"
)

func parseCmd() *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse notification text without storing anything",
		Long: `Run the parser against a notification and show what it found.

With --package the banks registered for that app are tried, exactly as for a
live notification. Without it every enabled bank is tried, as for text the
user pastes in.`,
		Example: `  notiledger parse --package com.kbcard.cxh.appcard "KB국민카드 승인 12,300원 스타벅스"
  notiledger parse "신한 입금 50,000원 홍길동"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			text := strings.Join(args, " ")
			var res *parser.Result
			if pkg != "" {
				res, err = parser.Parse(snap, text, pkg)
			} else {
				res, err = parser.ParseManualText(snap, text)
			}
			out := cmd.OutOrStdout()
			if err != nil {
				if parser.KindOf(err) == 0 {
					return err
				}
				_, werr := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Not parsed (%s): %v", parser.KindOf(err), err)))
				return werr
			}

			txn := res.Transaction(model.Notification{Text: text, SourcePackage: pkg}, model.SourceManualTextInput)
			return printTransaction(out, "Parsed Notification", txn)
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "source app package name")
	return cmd
}

func printTransaction(out io.Writer, title string, txn *model.Transaction) error {
	merchant := txn.MerchantName
	if merchant == "" {
		merchant = cli.SubtleStyle.Render("(none)")
	}
	subType := string(txn.IncomeSubType)
	if txn.Type == model.TypeExpense {
		subType = string(txn.ExpenseSubType)
	}

	body := fmt.Sprintf("Bank: %s (%s)\n", txn.BankName, txn.BankID) +
		fmt.Sprintf("Amount: %s\n", cli.FormatAmount(txn.Amount, txn.Type)) +
		fmt.Sprintf("Type: %s %s\n", txn.Type, subType) +
		fmt.Sprintf("Merchant: %s\n", merchant) +
		fmt.Sprintf("Category: %s\n", txn.Category) +
		fmt.Sprintf("Confirmed: %t", txn.IsConfirmed)
	if txn.ID != "" {
		body = fmt.Sprintf("ID: %s\n", txn.ID) + body
	}

	_, err := fmt.Fprintln(out, cli.RenderBox(title, body))
	return err
}
